package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// APIBaseURL is the HTTP base of the livestream room service.
	APIBaseURL string
	// WSBaseURL is the signaling endpoint base. Derived from APIBaseURL
	// when not set explicitly.
	WSBaseURL string

	// Token is an inline bearer credential; TokenFile points at a file
	// holding one. At least one must be usable to start a session.
	Token     string
	TokenFile string

	SnapshotInterval time.Duration

	// GStreamer capture pipeline templates. Each must end in an RTP
	// udpsink with "port=%d"; the snapshot pipeline ends in a filesink
	// with "location=%s".
	VideoPipelineFront string
	VideoPipelineBack  string
	AudioPipeline      string
	SnapshotPipeline   string
}

const (
	defaultAPIBaseURL       = "http://localhost:8080"
	defaultSnapshotInterval = 30 * time.Second
)

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:         getenv("LIVE_API_URL", defaultAPIBaseURL),
		Token:              os.Getenv("LIVE_TOKEN"),
		TokenFile:          os.Getenv("LIVE_TOKEN_FILE"),
		VideoPipelineFront: os.Getenv("LIVE_GST_VIDEO_FRONT"),
		VideoPipelineBack:  os.Getenv("LIVE_GST_VIDEO_BACK"),
		AudioPipeline:      os.Getenv("LIVE_GST_AUDIO"),
		SnapshotPipeline:   os.Getenv("LIVE_GST_SNAPSHOT"),
		SnapshotInterval:   defaultSnapshotInterval,
	}

	cfg.WSBaseURL = os.Getenv("LIVE_WS_URL")
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = DeriveWSBase(cfg.APIBaseURL)
	}

	if v := os.Getenv("LIVE_SNAPSHOT_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("LIVE_SNAPSHOT_INTERVAL must be a positive number of seconds, got %q", v)
		}
		cfg.SnapshotInterval = time.Duration(secs) * time.Second
	}
	return cfg, nil
}

// DeriveWSBase maps an http(s) base URL to its ws(s) counterpart.
func DeriveWSBase(httpBase string) string {
	if strings.HasPrefix(httpBase, "https") {
		return "wss" + strings.TrimPrefix(httpBase, "https")
	}
	if strings.HasPrefix(httpBase, "http") {
		return "ws" + strings.TrimPrefix(httpBase, "http")
	}
	return httpBase
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
