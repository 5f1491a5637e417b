package domain

// Facing selects which camera a capture pipeline uses.
type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

// Opposite returns the other camera facing.
func (f Facing) Opposite() Facing {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

// TrackKind identifies a media track's type.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is an outbound captured media track.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	Stop() error
}

// RemoteTrack is an inbound media track received from the remote peer.
type RemoteTrack interface {
	ID() string
	Kind() TrackKind
	// StreamID is the identifier of the stream the track arrived on, or
	// empty when the track was signaled without one.
	StreamID() string
	// OnEnded registers fn to run once when the track terminates.
	OnEnded(fn func())
}

// MediaSource acquires capture device tracks.
type MediaSource interface {
	// Acquire starts audio and video capture for the given facing.
	Acquire(facing Facing) (audio, video LocalTrack, err error)
	// AcquireVideo starts a video-only capture, used for camera switching.
	AcquireVideo(facing Facing) (LocalTrack, error)
}

// Peer is the peer-connection capability consumed by the negotiation state
// machines. Implementations must not panic across this boundary; every
// failure is an error return.
type Peer interface {
	OnICECandidate(fn func(candidate string))
	OnTrack(fn func(t RemoteTrack))
	AddLocalTrack(t LocalTrack) error
	// ReplaceVideoTrack swaps the outgoing video track in place without
	// triggering renegotiation.
	ReplaceVideoTrack(t LocalTrack) error
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetLocalDescription(sdpType, sdp string) error
	SetRemoteDescription(sdpType, sdp string) error
	AddICECandidate(candidate string) error
	Close() error
}

// PeerFactory creates peer connections carrying the session's fixed ICE
// server configuration.
type PeerFactory interface {
	NewPeer() (Peer, error)
}

// SignalSender is the slice of the signaling channel the sessions drive.
// Send is best effort: messages are dropped silently while the channel is
// closed.
type SignalSender interface {
	Send(msg SignalingMessage)
	Close()
}

// TokenStore supplies the bearer credential used to address the signaling
// server. An absent or expired credential is a fatal session-start error.
type TokenStore interface {
	AccessToken() (string, error)
}

// RoomLister retrieves the active live rooms.
type RoomLister interface {
	ListRooms() ([]Room, error)
}

// SnapshotUploader publishes a representative frame for a room. Callers
// treat failures as best effort.
type SnapshotUploader interface {
	UploadSnapshot(roomID string, jpeg []byte) error
}

// FrameGrabber captures a representative frame of the outgoing stream.
type FrameGrabber interface {
	GrabFrame() ([]byte, error)
}
