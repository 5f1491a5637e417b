// Package session holds the negotiation state machines that drive one peer
// connection per live room, in either the publisher or the subscriber role.
package session

// State is the lifecycle phase of a negotiation session.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingChannel State = "awaiting_channel"
	StateAwaitingOffer   State = "awaiting_offer"
	StateNegotiating     State = "negotiating"
	StateAnswering       State = "answering"
	StateConnected       State = "connected"
	StateFailed          State = "failed"
	StateEnded           State = "ended"
)
