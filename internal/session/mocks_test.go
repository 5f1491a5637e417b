package session

import (
	"errors"
	"sync"

	"github.com/whatyes/livesignal/internal/domain"
)

// Shared SDP fixtures. The video section lists VP8 before H264 so rewritten
// descriptions are observably reordered.
const (
	sampleOffer = "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\nt=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96 102\r\n" +
		"a=rtpmap:96 VP8/90000\r\n" +
		"a=rtpmap:102 H264/90000\r\n"

	reorderedVideoLine = "m=video 9 UDP/TLS/RTP/SAVPF 102 96"
)

// mockChannel records sent messages for verification.
type mockChannel struct {
	mu     sync.Mutex
	sent   []domain.SignalingMessage
	closed bool
}

func (m *mockChannel) Send(msg domain.SignalingMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockChannel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockChannel) messages() []domain.SignalingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SignalingMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockChannel) lastOfType(t domain.MessageType) (domain.SignalingMessage, bool) {
	for _, msg := range m.messages() {
		if msg.Type == t {
			return msg, true
		}
	}
	return domain.SignalingMessage{}, false
}

// mockPeer records calls for verification.
type mockPeer struct {
	offerSDP  string
	answerSDP string

	replaceErr   error
	setRemoteErr error
	createOffErr error
	createAnsErr error

	onICE       func(string)
	onTrack     func(domain.RemoteTrack)
	localTracks []domain.LocalTrack
	replaced    domain.LocalTrack
	candidates  []string
	remoteType  string
	remoteSDP   string
	localType   string
	localSDP    string
	closeCalls  int
}

func (m *mockPeer) OnICECandidate(fn func(string))      { m.onICE = fn }
func (m *mockPeer) OnTrack(fn func(domain.RemoteTrack)) { m.onTrack = fn }

func (m *mockPeer) AddLocalTrack(t domain.LocalTrack) error {
	m.localTracks = append(m.localTracks, t)
	return nil
}

func (m *mockPeer) ReplaceVideoTrack(t domain.LocalTrack) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaced = t
	return nil
}

func (m *mockPeer) CreateOffer() (string, error)  { return m.offerSDP, m.createOffErr }
func (m *mockPeer) CreateAnswer() (string, error) { return m.answerSDP, m.createAnsErr }

func (m *mockPeer) SetLocalDescription(sdpType, sdp string) error {
	m.localType, m.localSDP = sdpType, sdp
	return nil
}

func (m *mockPeer) SetRemoteDescription(sdpType, sdp string) error {
	if m.setRemoteErr != nil {
		return m.setRemoteErr
	}
	m.remoteType, m.remoteSDP = sdpType, sdp
	return nil
}

func (m *mockPeer) AddICECandidate(candidate string) error {
	m.candidates = append(m.candidates, candidate)
	return nil
}

func (m *mockPeer) Close() error {
	m.closeCalls++
	return nil
}

// mockPeerFactory hands out the prepared peers in order.
type mockPeerFactory struct {
	peers   []*mockPeer
	next    int
	makeErr error
}

func (f *mockPeerFactory) NewPeer() (domain.Peer, error) {
	if f.makeErr != nil {
		return nil, f.makeErr
	}
	if f.next >= len(f.peers) {
		return nil, errors.New("factory exhausted")
	}
	p := f.peers[f.next]
	f.next++
	return p, nil
}

// mockLocalTrack is a stoppable capture track stand-in.
type mockLocalTrack struct {
	id      string
	kind    domain.TrackKind
	stopped bool
}

func (t *mockLocalTrack) ID() string             { return t.id }
func (t *mockLocalTrack) Kind() domain.TrackKind { return t.kind }
func (t *mockLocalTrack) Stop() error {
	t.stopped = true
	return nil
}

// mockMedia hands out prepared tracks per acquisition.
type mockMedia struct {
	acquireErr error
	videoErr   error

	audio      *mockLocalTrack
	video      *mockLocalTrack
	nextVideo  *mockLocalTrack
	lastFacing domain.Facing
}

func (m *mockMedia) Acquire(facing domain.Facing) (domain.LocalTrack, domain.LocalTrack, error) {
	if m.acquireErr != nil {
		return nil, nil, m.acquireErr
	}
	m.lastFacing = facing
	return m.audio, m.video, nil
}

func (m *mockMedia) AcquireVideo(facing domain.Facing) (domain.LocalTrack, error) {
	if m.videoErr != nil {
		return nil, m.videoErr
	}
	m.lastFacing = facing
	return m.nextVideo, nil
}

// mockRemoteTrack simulates an inbound track with a controllable end event.
type mockRemoteTrack struct {
	id       string
	kind     domain.TrackKind
	streamID string

	mu       sync.Mutex
	ended    bool
	endedFns []func()
}

func (t *mockRemoteTrack) ID() string             { return t.id }
func (t *mockRemoteTrack) Kind() domain.TrackKind { return t.kind }
func (t *mockRemoteTrack) StreamID() string       { return t.streamID }

func (t *mockRemoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.endedFns = append(t.endedFns, fn)
	t.mu.Unlock()
}

func (t *mockRemoteTrack) end() {
	t.mu.Lock()
	t.ended = true
	fns := t.endedFns
	t.endedFns = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mockUploader records snapshot uploads.
type mockUploader struct {
	mu      sync.Mutex
	uploads []string
}

func (m *mockUploader) UploadSnapshot(roomID string, jpeg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, roomID)
	return nil
}

func (m *mockUploader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

// mockFrames returns a fixed frame.
type mockFrames struct{}

func (mockFrames) GrabFrame() ([]byte, error) { return []byte{0xff, 0xd8}, nil }
