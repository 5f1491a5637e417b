package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/whatyes/livesignal/internal/domain"
	"github.com/whatyes/livesignal/internal/sdp"
)

const (
	defaultPreferredCodec   = "H264"
	defaultSnapshotInterval = 30 * time.Second
)

// PublisherConfig wires a publisher session to its collaborators. Frames and
// Snapshots are optional; when either is nil the snapshot side task is
// skipped.
type PublisherConfig struct {
	Channel   domain.SignalSender
	Peers     domain.PeerFactory
	Media     domain.MediaSource
	Frames    domain.FrameGrabber
	Snapshots domain.SnapshotUploader

	PreferredCodec   string
	SnapshotInterval time.Duration
	Facing           domain.Facing
}

// Publisher drives the create-offer negotiation flow: once the channel has
// joined a room it captures local media, offers it with the preferred codec
// first, and applies the server's answer and trickled candidates.
type Publisher struct {
	cfg PublisherConfig

	mu       sync.Mutex
	state    State
	lastErr  string
	roomID   string
	facing   domain.Facing
	peer     domain.Peer
	audio    domain.LocalTrack
	video    domain.LocalTrack
	snapStop chan struct{}
}

// NewPublisher creates an idle publisher session. Call Start, then feed it
// signaling messages via HandleMessage.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.PreferredCodec == "" {
		cfg.PreferredCodec = defaultPreferredCodec
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.Facing == "" {
		cfg.Facing = domain.FacingFront
	}
	return &Publisher{cfg: cfg, state: StateIdle, facing: cfg.Facing}
}

// Start moves the session to waiting on the channel. Negotiation begins when
// the server's joined message arrives.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle {
		p.state = StateAwaitingChannel
	}
}

// HandleMessage reacts to one inbound signaling message. It is safe to call
// from the channel's handler; messages are processed in receipt order.
func (p *Publisher) HandleMessage(msg domain.SignalingMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Type {
	case domain.MsgJoined:
		p.roomID = msg.RoomID
		if p.state == StateAwaitingChannel {
			p.beginLocked()
		}
	case domain.MsgAnswer:
		if p.state != StateNegotiating || p.peer == nil {
			return
		}
		if err := p.peer.SetRemoteDescription("answer", msg.SDP); err != nil {
			p.failLocked(fmt.Sprintf("apply answer: %v", err))
			return
		}
		p.state = StateConnected
		p.startSnapshotsLocked()
	case domain.MsgICE:
		if p.peer == nil {
			return
		}
		if err := p.peer.AddICECandidate(msg.Candidate); err != nil {
			log.Printf("[publisher] add ice candidate: %v", err)
		}
	case domain.MsgError:
		detail := msg.ErrorDetail()
		if detail == "" {
			detail = "server error"
		}
		p.failLocked(detail)
	}
}

// beginLocked runs the full offer flow. Any step failure converts to the
// failed state; nothing is sent after a failure.
func (p *Publisher) beginLocked() {
	log.Printf("[publisher] joined room %s, starting negotiation", p.roomID)

	audio, video, err := p.cfg.Media.Acquire(p.facing)
	if err != nil {
		p.failLocked(fmt.Sprintf("acquire media: %v", err))
		return
	}
	p.audio, p.video = audio, video

	peer, err := p.cfg.Peers.NewPeer()
	if err != nil {
		p.failLocked(fmt.Sprintf("create peer: %v", err))
		return
	}
	p.peer = peer

	peer.OnICECandidate(func(candidate string) {
		p.cfg.Channel.Send(domain.SignalingMessage{Type: domain.MsgICE, Candidate: candidate})
	})

	if err := peer.AddLocalTrack(audio); err != nil {
		p.failLocked(fmt.Sprintf("add audio track: %v", err))
		return
	}
	if err := peer.AddLocalTrack(video); err != nil {
		p.failLocked(fmt.Sprintf("add video track: %v", err))
		return
	}

	offer, err := peer.CreateOffer()
	if err != nil {
		p.failLocked(fmt.Sprintf("create offer: %v", err))
		return
	}
	rewritten := sdp.Prefer(offer, p.cfg.PreferredCodec)
	if rewritten == "" {
		p.failLocked("offer produced an empty description")
		return
	}
	if err := peer.SetLocalDescription("offer", rewritten); err != nil {
		p.failLocked(fmt.Sprintf("set local description: %v", err))
		return
	}

	p.cfg.Channel.Send(domain.SignalingMessage{Type: domain.MsgOffer, SDP: rewritten})
	p.state = StateNegotiating
}

// SwitchCamera acquires a capture with the opposite facing and swaps the
// outgoing video track in place. On any failure the current track stays
// active and the error is recorded.
func (p *Publisher) SwitchCamera() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peer == nil {
		return fmt.Errorf("no active connection")
	}

	next := p.facing.Opposite()
	replacement, err := p.cfg.Media.AcquireVideo(next)
	if err != nil {
		p.lastErr = fmt.Sprintf("switch camera: %v", err)
		return fmt.Errorf("acquire %s camera: %w", next, err)
	}
	if err := p.peer.ReplaceVideoTrack(replacement); err != nil {
		_ = replacement.Stop()
		p.lastErr = fmt.Sprintf("switch camera: %v", err)
		return fmt.Errorf("replace video track: %w", err)
	}

	if p.video != nil {
		_ = p.video.Stop()
	}
	p.video = replacement
	p.facing = next
	log.Printf("[publisher] switched camera to %s", next)
	return nil
}

// startSnapshotsLocked launches the periodic frame-upload side task. Errors
// are logged and never reach negotiation state.
func (p *Publisher) startSnapshotsLocked() {
	if p.cfg.Frames == nil || p.cfg.Snapshots == nil || p.snapStop != nil {
		return
	}
	stop := make(chan struct{})
	p.snapStop = stop
	roomID := p.roomID

	go func() {
		ticker := time.NewTicker(p.cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			if jpeg, err := p.cfg.Frames.GrabFrame(); err != nil {
				log.Printf("[publisher] snapshot capture: %v", err)
			} else if err := p.cfg.Snapshots.UploadSnapshot(roomID, jpeg); err != nil {
				log.Printf("[publisher] snapshot upload: %v", err)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (p *Publisher) failLocked(msg string) {
	log.Printf("[publisher] failed: %s", msg)
	p.lastErr = msg
	p.state = StateFailed
}

// End tears the session down. Every release is attempted regardless of the
// others: snapshot task, peer connection, both tracks, then the channel.
func (p *Publisher) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snapStop != nil {
		close(p.snapStop)
		p.snapStop = nil
	}
	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}
	if p.audio != nil {
		_ = p.audio.Stop()
		p.audio = nil
	}
	if p.video != nil {
		_ = p.video.Stop()
		p.video = nil
	}
	p.cfg.Channel.Close()
	p.state = StateEnded
}

func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Publisher) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Publisher) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

func (p *Publisher) Facing() domain.Facing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.facing
}
