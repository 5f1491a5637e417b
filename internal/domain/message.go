package domain

// MessageType tags a signaling message variant.
type MessageType string

const (
	MsgOffer  MessageType = "offer"
	MsgAnswer MessageType = "answer"
	MsgICE    MessageType = "ice"
	MsgJoined MessageType = "joined"
	MsgError  MessageType = "error"
)

// SignalingMessage is the JSON envelope exchanged with the livestream
// signaling server. SDP is present only for offer/answer, Candidate only for
// ice, RoomID only for joined, Detail only for error.
type SignalingMessage struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// ErrorDetail returns the server-reported error text of an error message.
// Older servers carry the detail in the sdp field; both are accepted.
func (m SignalingMessage) ErrorDetail() string {
	if m.Detail != "" {
		return m.Detail
	}
	return m.SDP
}
