package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/whatyes/livesignal/internal/api"
	"github.com/whatyes/livesignal/internal/config"
	"github.com/whatyes/livesignal/internal/domain"
	"github.com/whatyes/livesignal/internal/media"
	"github.com/whatyes/livesignal/internal/session"
	sigclient "github.com/whatyes/livesignal/internal/signal"
	"github.com/whatyes/livesignal/internal/token"
	"github.com/whatyes/livesignal/internal/webrtc"
)

const helpText = `livesignal - publish or watch a live room over WebRTC

Usage:
  livesignal --role publisher [--name <display name>] [--facing front|back]
  livesignal --role subscriber [--room <room id>]

As a subscriber the received H264 stream is written to stdout. Pipe to
ffplay or ffmpeg for playback or recording.

Environment Variables:
  LIVE_API_URL            API base URL (default http://localhost:8080)
  LIVE_WS_URL             Signaling base URL (derived from the API URL if unset)
  LIVE_TOKEN              Bearer token
  LIVE_TOKEN_FILE         File to read the token from when LIVE_TOKEN is unset
  LIVE_SNAPSHOT_INTERVAL  Publisher snapshot period in seconds (default 30)

Examples:
  # Go live with the front camera
  livesignal --role publisher --name "ayu stores"

  # Watch a room
  livesignal --role subscriber --room r1 | ffplay -f h264 -
`

func main() {
	role := pflag.String("role", "subscriber", "session role: publisher or subscriber")
	room := pflag.String("room", "", "room to watch (subscriber); the first live room when empty")
	name := pflag.String("name", "", "seller display name (publisher)")
	facing := pflag.String("facing", "front", "initial camera facing: front or back")
	help := pflag.BoolP("help", "h", false, "show help")
	pflag.Parse()

	if *help {
		fmt.Print(helpText)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	tokens, err := token.New(cfg.Token, cfg.TokenFile)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	bearer, err := tokens.AccessToken()
	if err != nil {
		log.Fatalf("[main] access token: %v", err)
	}

	apiClient := api.NewClient(cfg.APIBaseURL, tokens)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	switch *role {
	case "publisher":
		runPublisher(ctx, cfg, apiClient, bearer, *name, domain.Facing(*facing))
	case "subscriber":
		runSubscriber(ctx, cfg, apiClient, bearer, *room)
	default:
		log.Fatalf("[main] unknown role %q", *role)
	}
}

func runPublisher(ctx context.Context, cfg *config.Config, apiClient *api.Client, bearer, sellerName string, facing domain.Facing) {
	source := media.NewSource(media.Config{
		VideoPipelineFront: cfg.VideoPipelineFront,
		VideoPipelineBack:  cfg.VideoPipelineBack,
		AudioPipeline:      cfg.AudioPipeline,
		SnapshotPipeline:   cfg.SnapshotPipeline,
	})
	factory := webrtc.NewFactory()

	var pub *session.Publisher
	ch := sigclient.New(func(msg domain.SignalingMessage) {
		pub.HandleMessage(msg)
	})
	pub = session.NewPublisher(session.PublisherConfig{
		Channel:          ch,
		Peers:            factory,
		Media:            source,
		Frames:           source,
		Snapshots:        apiClient,
		SnapshotInterval: cfg.SnapshotInterval,
		Facing:           facing,
	})
	pub.Start()

	url := sigclient.BuildURL(cfg.WSBaseURL, bearer, sigclient.RolePublisher, "", sellerName)
	if err := ch.SetURL(url); err != nil {
		log.Fatalf("[main] signaling connect: %v", err)
	}

	waitForEnd(ctx, func() session.State { return pub.State() })
	pub.End()
	log.Printf("[main] done")
}

func runSubscriber(ctx context.Context, cfg *config.Config, apiClient *api.Client, bearer, roomID string) {
	if roomID == "" {
		rooms, err := apiClient.ListRooms()
		if err != nil {
			log.Fatalf("[main] list rooms: %v", err)
		}
		if len(rooms) == 0 {
			log.Fatalf("[main] no live rooms")
		}
		for _, r := range rooms {
			log.Printf("[main] live room %s (%s, %d watching)", r.RoomID, r.SellerName, r.ViewerCount)
		}
		roomID = rooms[0].RoomID
		log.Printf("[main] watching %s", roomID)
	}

	factory := webrtc.NewFactory()

	var sub *session.Subscriber
	ch := sigclient.New(func(msg domain.SignalingMessage) {
		sub.HandleMessage(msg)
	})
	sub = session.NewSubscriber(session.SubscriberConfig{
		Channel:          ch,
		Peers:            factory,
		OnSurfaceChanged: renderTo(os.Stdout),
	})
	sub.Start(roomID)

	url := sigclient.BuildURL(cfg.WSBaseURL, bearer, sigclient.RoleSubscriber, roomID, "")
	if err := ch.SetURL(url); err != nil {
		log.Fatalf("[main] signaling connect: %v", err)
	}

	waitForEnd(ctx, func() session.State { return sub.State() })
	if sub.State() == session.StateFailed {
		log.Printf("[main] stream failed: %s", sub.LastError())
	}
	sub.Close()
	log.Printf("[main] done")
}

// renderTo copies the newest video track of each surface as Annex-B H264 to w.
func renderTo(w io.Writer) func(session.Surface) {
	return func(surf session.Surface) {
		if len(surf.Tracks) == 0 {
			log.Printf("[main] remote surface cleared")
			return
		}
		track := surf.Tracks[len(surf.Tracks)-1]
		h264, ok := track.(interface{ CopyH264(io.Writer) error })
		if !ok {
			return
		}
		log.Printf("[main] rendering track %s (surface %d)", track.ID(), surf.Key)
		go func() {
			if err := h264.CopyH264(w); err != nil {
				log.Printf("[main] render: %v", err)
			}
		}()
	}
}

// waitForEnd blocks until the context is canceled or the session reaches a
// terminal state.
func waitForEnd(ctx context.Context, state func() session.State) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state() {
			case session.StateFailed, session.StateEnded:
				return
			}
		}
	}
}
