// Package api talks to the livestream room service over REST.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whatyes/livesignal/internal/domain"
)

const (
	roomsPath      = "/rooms"
	requestTimeout = 15 * time.Second
)

// Client fetches room listings and uploads room snapshots.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     domain.TokenStore
}

// NewClient creates an API client for the given HTTP base URL.
func NewClient(baseURL string, tokens domain.TokenStore) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		tokens:     tokens,
	}
}

// ListRooms returns the active live rooms.
func (c *Client) ListRooms() ([]domain.Room, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+roomsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create rooms request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var rooms []domain.Room
	if err := json.Unmarshal(body, &rooms); err != nil {
		return nil, fmt.Errorf("unmarshal rooms: %w", err)
	}
	return rooms, nil
}

// UploadSnapshot posts a JPEG frame for the room. The server keys snapshots
// by room, so repeated uploads replace the previous frame.
func (c *Client) UploadSnapshot(roomID string, jpeg []byte) error {
	if roomID == "" {
		return fmt.Errorf("upload snapshot: empty room id")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", roomID+".jpg")
	if err != nil {
		return fmt.Errorf("create snapshot form: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return fmt.Errorf("write snapshot form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close snapshot form: %w", err)
	}

	url := c.baseURL + roomsPath + "/" + roomID + "/snapshot"
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create snapshot request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.tokens != nil {
		tok, err := c.tokens.AccessToken()
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
