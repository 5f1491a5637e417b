package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/whatyes/livesignal/internal/domain"
	"github.com/whatyes/livesignal/internal/sdp"
)

const defaultMediaTimeout = 20 * time.Second

// noMediaDetail is the server's error detail for a room whose publisher has
// not started streaming yet.
const noMediaDetail = "no_media"

// Surface is the playable remote media handle exposed to the renderer. Key
// changes whenever the renderer must rebuild its view; Tracks is nil while no
// media is bound.
type Surface struct {
	Key      int
	StreamID string
	Tracks   []domain.RemoteTrack
}

// SubscriberConfig wires a subscriber session to its collaborators.
// OnSurfaceChanged, when set, is invoked outside the session lock every time
// the surface handle changes.
type SubscriberConfig struct {
	Channel domain.SignalSender
	Peers   domain.PeerFactory

	PreferredCodec   string
	MediaTimeout     time.Duration
	OnSurfaceChanged func(Surface)
}

// Subscriber drives the receive-offer negotiation flow for one room: it
// answers server-initiated offers, buffers candidates that outrun the offer,
// and tracks the remote video surface across track replacement and
// termination.
type Subscriber struct {
	cfg SubscriberConfig

	mu          sync.Mutex
	state       State
	lastErr     string
	roomID      string
	peer        domain.Peer
	pendingICE  []string
	combined    []domain.RemoteTrack
	lastVideoID string
	surface     Surface
	watchdog    *time.Timer
}

// NewSubscriber creates an idle subscriber session.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.PreferredCodec == "" {
		cfg.PreferredCodec = defaultPreferredCodec
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = defaultMediaTimeout
	}
	return &Subscriber{cfg: cfg, state: StateIdle}
}

// Start records the caller-supplied room and arms the no-media watchdog. The
// watchdog fires the failed state unless a surface appears first; it never
// fires after failed or ended.
func (s *Subscriber) Start(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.roomID = roomID
	s.state = StateAwaitingOffer
	s.watchdog = time.AfterFunc(s.cfg.MediaTimeout, s.mediaTimeout)
}

func (s *Subscriber) mediaTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnected, StateFailed, StateEnded:
		return
	}
	s.failLocked("could not connect to the stream")
}

// HandleMessage reacts to one inbound signaling message in receipt order.
func (s *Subscriber) HandleMessage(msg domain.SignalingMessage) {
	switch msg.Type {
	case domain.MsgOffer:
		s.handleOffer(msg.SDP)
	case domain.MsgICE:
		s.handleCandidate(msg.Candidate)
	case domain.MsgError:
		s.handleError(msg)
	}
}

// handleOffer answers a server-initiated offer. A prior connection is torn
// down completely first: one close, queue cleared, accumulated remote state
// cleared, surface reset.
func (s *Subscriber) handleOffer(offer string) {
	s.mu.Lock()

	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}

	var notify *Surface
	if s.peer != nil {
		log.Printf("[subscriber] renegotiation offer, tearing down prior connection")
		_ = s.peer.Close()
		s.peer = nil
		s.pendingICE = nil
		s.combined = nil
		s.lastVideoID = ""
		notify = s.clearSurfaceLocked()
	}

	peer, err := s.cfg.Peers.NewPeer()
	if err != nil {
		s.failLocked(fmt.Sprintf("create peer: %v", err))
		s.mu.Unlock()
		s.notifySurface(notify)
		return
	}
	s.peer = peer

	peer.OnICECandidate(func(candidate string) {
		s.cfg.Channel.Send(domain.SignalingMessage{Type: domain.MsgICE, Candidate: candidate})
	})
	peer.OnTrack(s.handleTrack)

	if err := peer.SetRemoteDescription("offer", offer); err != nil {
		s.failLocked(fmt.Sprintf("apply offer: %v", err))
		s.mu.Unlock()
		s.notifySurface(notify)
		return
	}

	// Candidates that outran the offer, replayed in arrival order.
	for _, c := range s.pendingICE {
		if err := peer.AddICECandidate(c); err != nil {
			log.Printf("[subscriber] add queued candidate: %v", err)
		}
	}
	s.pendingICE = nil

	answer, err := peer.CreateAnswer()
	if err != nil {
		s.failLocked(fmt.Sprintf("create answer: %v", err))
		s.mu.Unlock()
		s.notifySurface(notify)
		return
	}
	rewritten := sdp.Prefer(answer, s.cfg.PreferredCodec)
	if rewritten == "" {
		s.failLocked("answer produced an empty description")
		s.mu.Unlock()
		s.notifySurface(notify)
		return
	}
	if err := peer.SetLocalDescription("answer", rewritten); err != nil {
		s.failLocked(fmt.Sprintf("set local description: %v", err))
		s.mu.Unlock()
		s.notifySurface(notify)
		return
	}

	s.cfg.Channel.Send(domain.SignalingMessage{Type: domain.MsgAnswer, SDP: rewritten})
	if s.state != StateFailed {
		s.state = StateAnswering
	}
	s.mu.Unlock()
	s.notifySurface(notify)
}

// handleCandidate applies a remote candidate immediately when a connection
// exists, otherwise queues it for the next offer.
func (s *Subscriber) handleCandidate(candidate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		s.pendingICE = append(s.pendingICE, candidate)
		return
	}
	if err := s.peer.AddICECandidate(candidate); err != nil {
		log.Printf("[subscriber] add ice candidate: %v", err)
	}
}

// handleTrack binds an incoming remote track to the surface. A video track
// whose id differs from the previously bound one replaces the surface with a
// single key change and no intermediate clear.
func (s *Subscriber) handleTrack(t domain.RemoteTrack) {
	if t.Kind() != domain.TrackVideo {
		return
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}

	if s.lastVideoID != "" && s.lastVideoID != t.ID() {
		log.Printf("[subscriber] video track replaced: %s -> %s", s.lastVideoID, t.ID())
	}
	s.lastVideoID = t.ID()

	if sid := t.StreamID(); sid != "" {
		s.surface = Surface{Key: s.surface.Key + 1, StreamID: sid, Tracks: []domain.RemoteTrack{t}}
	} else {
		s.combined = append(s.combined, t)
		s.surface = Surface{Key: s.surface.Key + 1, Tracks: s.combined}
	}
	changed := s.surface

	s.state = StateConnected
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.mu.Unlock()

	// Registered outside the lock: an already-ended track fires synchronously.
	id := t.ID()
	t.OnEnded(func() { s.trackEnded(id) })
	s.notifySurface(&changed)
}

// trackEnded clears the surface when the currently bound video track
// terminates. Stale callbacks from replaced tracks are ignored.
func (s *Subscriber) trackEnded(id string) {
	s.mu.Lock()
	if s.state == StateEnded || s.lastVideoID != id {
		s.mu.Unlock()
		return
	}
	log.Printf("[subscriber] video track %s ended", id)
	s.lastVideoID = ""
	s.combined = nil
	notify := s.clearSurfaceLocked()
	s.mu.Unlock()
	s.notifySurface(notify)
}

func (s *Subscriber) handleError(msg domain.SignalingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail := msg.ErrorDetail()
	switch {
	case detail == noMediaDetail:
		s.failLocked("seller is not streaming yet")
	case detail != "":
		s.failLocked(detail)
	default:
		s.failLocked("stream failed")
	}
}

func (s *Subscriber) failLocked(msg string) {
	if s.state == StateEnded || s.state == StateFailed {
		return
	}
	log.Printf("[subscriber] failed: %s", msg)
	s.lastErr = msg
	s.state = StateFailed
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
}

// clearSurfaceLocked resets the surface to empty with a fresh key and returns
// the handle to report, or nil when there was nothing bound.
func (s *Subscriber) clearSurfaceLocked() *Surface {
	if s.surface.Tracks == nil && s.surface.StreamID == "" {
		return nil
	}
	s.surface = Surface{Key: s.surface.Key + 1}
	cleared := s.surface
	return &cleared
}

func (s *Subscriber) notifySurface(surf *Surface) {
	if surf == nil || s.cfg.OnSurfaceChanged == nil {
		return
	}
	s.cfg.OnSurfaceChanged(*surf)
}

// Close tears the session down unconditionally: watchdog, peer connection,
// candidate queue, track memo, then the channel.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.peer != nil {
		_ = s.peer.Close()
		s.peer = nil
	}
	s.pendingICE = nil
	s.combined = nil
	s.lastVideoID = ""
	s.surface = Surface{Key: s.surface.Key + 1}
	s.cfg.Channel.Close()
	s.state = StateEnded
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Subscriber) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Surface returns the current remote media handle.
func (s *Subscriber) Surface() Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}
