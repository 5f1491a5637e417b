// Package media captures audio and video through short-lived GStreamer
// pipelines and feeds the resulting RTP streams into Pion local tracks.
package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"github.com/whatyes/livesignal/internal/domain"
)

const (
	rtpMTU          = 1500
	snapshotTimeout = 10 * time.Second
	captureStreamID = "capture"
)

// Default pipeline templates. The %d verb is replaced with the UDP port the
// pump listens on; the snapshot %s verb with the output file path.
const (
	defaultVideoFront = "v4l2src device=/dev/video0 ! video/x-raw,width=640,height=480,framerate=30/1 ! videoconvert ! x264enc tune=zerolatency bitrate=800 speed-preset=ultrafast key-int-max=60 ! h264parse config-interval=1 ! rtph264pay pt=96 config-interval=1 ! udpsink host=127.0.0.1 port=%d"
	defaultVideoBack  = "v4l2src device=/dev/video1 ! video/x-raw,width=640,height=480,framerate=30/1 ! videoconvert ! x264enc tune=zerolatency bitrate=800 speed-preset=ultrafast key-int-max=60 ! h264parse config-interval=1 ! rtph264pay pt=96 config-interval=1 ! udpsink host=127.0.0.1 port=%d"
	defaultAudio      = "alsasrc ! audioconvert ! audioresample ! opusenc bitrate=24000 ! rtpopuspay pt=111 ! udpsink host=127.0.0.1 port=%d"
	defaultSnapshot   = "v4l2src device=/dev/video0 num-buffers=1 ! videoconvert ! jpegenc quality=60 ! filesink location=%s"
)

// Config carries the pipeline templates, typically loaded from the
// environment. Empty fields fall back to the built-in defaults.
type Config struct {
	VideoPipelineFront string
	VideoPipelineBack  string
	AudioPipeline      string
	SnapshotPipeline   string
}

// Source acquires capture tracks backed by GStreamer child processes. It
// implements both track acquisition and frame grabbing.
type Source struct {
	cfg Config
}

// NewSource fills in default pipelines for any template left empty.
func NewSource(cfg Config) *Source {
	if cfg.VideoPipelineFront == "" {
		cfg.VideoPipelineFront = defaultVideoFront
	}
	if cfg.VideoPipelineBack == "" {
		cfg.VideoPipelineBack = defaultVideoBack
	}
	if cfg.AudioPipeline == "" {
		cfg.AudioPipeline = defaultAudio
	}
	if cfg.SnapshotPipeline == "" {
		cfg.SnapshotPipeline = defaultSnapshot
	}
	return &Source{cfg: cfg}
}

// Acquire starts audio and video capture for the given facing. On a partial
// failure the track that did start is stopped before returning.
func (s *Source) Acquire(facing domain.Facing) (audio, video domain.LocalTrack, err error) {
	a, err := s.startTrack(domain.TrackAudio, s.cfg.AudioPipeline)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire audio: %w", err)
	}
	v, err := s.AcquireVideo(facing)
	if err != nil {
		_ = a.Stop()
		return nil, nil, err
	}
	return a, v, nil
}

// AcquireVideo starts a video-only capture. Each call binds its own UDP port,
// so a replacement track can run alongside the one it replaces.
func (s *Source) AcquireVideo(facing domain.Facing) (domain.LocalTrack, error) {
	tmpl := s.cfg.VideoPipelineFront
	if facing == domain.FacingBack {
		tmpl = s.cfg.VideoPipelineBack
	}
	t, err := s.startTrack(domain.TrackVideo, tmpl)
	if err != nil {
		return nil, fmt.Errorf("acquire video (%s): %w", facing, err)
	}
	return t, nil
}

func (s *Source) startTrack(kind domain.TrackKind, tmpl string) (*Track, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, fmt.Errorf("listen rtp: %w", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port

	codec := pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}
	if kind == domain.TrackAudio {
		codec = pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}
	}
	rtpTrack, err := pion.NewTrackLocalStaticRTP(codec, uuid.NewString(), captureStreamID)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd, err := startGst(ctx, fmt.Sprintf(tmpl, port), string(kind))
	if err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	t := &Track{kind: kind, rtp: rtpTrack, conn: conn, cancel: cancel, cmd: cmd}
	go pumpRTP(ctx, conn, rtpTrack, string(kind))
	return t, nil
}

// GrabFrame runs the one-shot snapshot pipeline and returns the captured
// JPEG bytes.
func (s *Source) GrabFrame() ([]byte, error) {
	tmp, err := os.CreateTemp("", "livesignal-snap-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("snapshot temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	pipeline := fmt.Sprintf(s.cfg.SnapshotPipeline, path)
	args := append([]string{"-e"}, strings.Fields(pipeline)...)
	if err := exec.CommandContext(ctx, "gst-launch-1.0", args...).Run(); err != nil {
		return nil, fmt.Errorf("snapshot pipeline: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("snapshot pipeline produced no data")
	}
	return data, nil
}

// Track is a running capture pipeline feeding one Pion track.
type Track struct {
	kind   domain.TrackKind
	rtp    *pion.TrackLocalStaticRTP
	conn   *net.UDPConn
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

func (t *Track) ID() string             { return t.rtp.ID() }
func (t *Track) Kind() domain.TrackKind { return t.kind }

// PionTrack exposes the underlying track for attachment to a peer connection.
func (t *Track) PionTrack() pion.TrackLocal { return t.rtp }

// Stop tears down the pipeline process and the RTP pump.
func (t *Track) Stop() error {
	t.cancel()
	t.conn.Close()
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	return nil
}

// startGst launches a gst-launch-1.0 child for the given pipeline string.
func startGst(ctx context.Context, pipeline, tag string) (*exec.Cmd, error) {
	args := append([]string{"-e"}, strings.Fields(pipeline)...)
	cmd := exec.CommandContext(ctx, "gst-launch-1.0", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start gst-launch (%s): %w", tag, err)
	}
	log.Printf("[media] started gst-launch for %s capture, pid %d", tag, cmd.Process.Pid)
	return cmd, nil
}

// pumpRTP forwards RTP packets from the pipeline's UDP sink into the track.
func pumpRTP(ctx context.Context, conn *net.UDPConn, track *pion.TrackLocalStaticRTP, tag string) {
	buf := make([]byte, rtpMTU)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[media] rtp read error (%s): %v", tag, err)
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// not RTP, skip
			continue
		}
		if err := track.WriteRTP(&pkt); err != nil {
			log.Printf("[media] track write error (%s): %v", tag, err)
			return
		}
	}
}
