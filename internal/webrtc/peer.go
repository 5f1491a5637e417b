// Package webrtc adapts Pion to the peer-connection capability consumed by
// the negotiation sessions.
package webrtc

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"

	"github.com/whatyes/livesignal/internal/domain"
)

// DefaultSTUNServer is the fixed ICE configuration shared by both roles.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// PionTrackProvider is implemented by local tracks that wrap a Pion track.
// AddLocalTrack and ReplaceVideoTrack only accept such tracks.
type PionTrackProvider interface {
	PionTrack() pion.TrackLocal
}

// Factory creates peer connections with a fixed ICE server list.
type Factory struct {
	iceServers []string
}

// NewFactory returns a factory using the given STUN/TURN URLs, defaulting to
// a single public STUN server.
func NewFactory(iceServers ...string) *Factory {
	if len(iceServers) == 0 {
		iceServers = []string{DefaultSTUNServer}
	}
	return &Factory{iceServers: iceServers}
}

// NewPeer creates a peer connection with default codecs and interceptors.
func (f *Factory) NewPeer() (domain.Peer, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	reg := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(reg),
	)

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers: []pion.ICEServer{{URLs: f.iceServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Printf("[webrtc] ICE connection state: %s", state)
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Printf("[webrtc] peer connection state: %s", state)
	})

	return &Peer{pc: pc}, nil
}

// Peer wraps a Pion PeerConnection behind the domain port.
type Peer struct {
	pc *pion.PeerConnection
}

// OnICECandidate forwards each discovered local candidate to fn. The
// end-of-gathering nil candidate is swallowed.
func (p *Peer) OnICECandidate(fn func(candidate string)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON().Candidate)
	})
}

// OnTrack forwards each received remote track to fn. Audio tracks are
// drained in the background so their RTP does not pile up unread.
func (p *Peer) OnTrack(fn func(t domain.RemoteTrack)) {
	p.pc.OnTrack(func(tr *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := tr.Codec()
		log.Printf("[webrtc] got track: kind=%s codec=%s id=%s", tr.Kind(), codec.MimeType, tr.ID())

		rt := &RemoteTrack{tr: tr}
		if tr.Kind() == pion.RTPCodecTypeAudio {
			go rt.Drain()
		}
		fn(rt)
	})
}

// AddLocalTrack attaches a captured track to the connection.
func (p *Peer) AddLocalTrack(t domain.LocalTrack) error {
	pt, ok := t.(PionTrackProvider)
	if !ok {
		return fmt.Errorf("add track: %T does not carry a pion track", t)
	}
	if _, err := p.pc.AddTrack(pt.PionTrack()); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	return nil
}

// ReplaceVideoTrack swaps the outgoing video track on the existing sender in
// place, without renegotiation.
func (p *Peer) ReplaceVideoTrack(t domain.LocalTrack) error {
	pt, ok := t.(PionTrackProvider)
	if !ok {
		return fmt.Errorf("replace track: %T does not carry a pion track", t)
	}
	for _, sender := range p.pc.GetSenders() {
		cur := sender.Track()
		if cur == nil || cur.Kind() != pion.RTPCodecTypeVideo {
			continue
		}
		if err := sender.ReplaceTrack(pt.PionTrack()); err != nil {
			return fmt.Errorf("replace track: %w", err)
		}
		return nil
	}
	return fmt.Errorf("replace track: no video sender on connection")
}

// CreateOffer generates an SDP offer without applying it.
func (p *Peer) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer generates an SDP answer without applying it.
func (p *Peer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return answer.SDP, nil
}

// SetLocalDescription applies the local description. Pion rejects munged
// descriptions, so the connection always applies the exact description it
// generated; the codec-preference rewrite only changes the SDP signaled to
// the server, and payload-type mappings are identical either way.
func (p *Peer) SetLocalDescription(sdpType, _ string) error {
	t := pion.NewSDPType(sdpType)
	if t == pion.SDPTypeUnknown {
		return fmt.Errorf("set local description: unknown sdp type %q", sdpType)
	}
	if err := p.pc.SetLocalDescription(pion.SessionDescription{Type: t}); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

// SetRemoteDescription applies the remote peer's description.
func (p *Peer) SetRemoteDescription(sdpType, sdp string) error {
	t := pion.NewSDPType(sdpType)
	if t == pion.SDPTypeUnknown {
		return fmt.Errorf("set remote description: unknown sdp type %q", sdpType)
	}
	desc := pion.SessionDescription{Type: t, SDP: sdp}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddICECandidate applies a trickled remote candidate. The remote
// description must already be set.
func (p *Peer) AddICECandidate(candidate string) error {
	init := pion.ICECandidateInit{Candidate: candidate}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// Close shuts down the peer connection.
func (p *Peer) Close() error {
	return p.pc.Close()
}

// RemoteTrack wraps a Pion remote track. Termination is detected by whoever
// pumps the track: CopyH264 and Drain fire the registered OnEnded callbacks
// when the track's read side ends.
type RemoteTrack struct {
	tr *pion.TrackRemote

	mu       sync.Mutex
	ended    bool
	endedFns []func()
}

func (t *RemoteTrack) ID() string { return t.tr.ID() }

func (t *RemoteTrack) StreamID() string { return t.tr.StreamID() }

func (t *RemoteTrack) Kind() domain.TrackKind {
	if t.tr.Kind() == pion.RTPCodecTypeAudio {
		return domain.TrackAudio
	}
	return domain.TrackVideo
}

// OnEnded registers fn to run once when the track terminates. A track that
// already ended fires fn immediately.
func (t *RemoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.endedFns = append(t.endedFns, fn)
	t.mu.Unlock()
}

// CopyH264 depacketizes the track's RTP into w as an Annex-B H.264 stream
// until the track ends or w fails.
func (t *RemoteTrack) CopyH264(w io.Writer) error {
	startCode := []byte{0x00, 0x00, 0x00, 0x01}
	depack := NewH264Depacketizer()

	for {
		pkt, _, err := t.tr.ReadRTP()
		if err != nil {
			t.fireEnded()
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read video track: %w", err)
		}
		for _, nalu := range depack.Depacketize(pkt.Payload) {
			if len(nalu) == 0 {
				continue
			}
			if _, err := w.Write(startCode); err != nil {
				return err
			}
			if _, err := w.Write(nalu); err != nil {
				return err
			}
		}
	}
}

// Drain reads and discards the track until it ends.
func (t *RemoteTrack) Drain() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := t.tr.Read(buf); err != nil {
			t.fireEnded()
			return
		}
	}
}

func (t *RemoteTrack) fireEnded() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.endedFns
	t.endedFns = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
