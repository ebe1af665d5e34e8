package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TimelineSender pushes a pin to the Pebble timeline API using the channel
// descriptor as the user token.
type TimelineSender struct {
	client  *http.Client
	baseURL string
}

func NewTimelineSender(client *http.Client, baseURL string) *TimelineSender {
	return &TimelineSender{client: client, baseURL: baseURL}
}

type timelinePin struct {
	ID     string         `json:"id"`
	Time   string         `json:"time"`
	Layout timelineLayout `json:"layout"`
}

type timelineLayout struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	TinyIcon string `json:"tinyIcon"`
}

func (s *TimelineSender) Send(ctx context.Context, token string, note Note) error {
	pinID := uuid.NewString()
	pin := timelinePin{
		ID:   pinID,
		Time: note.SentAt.UTC().Format(time.RFC3339),
		Layout: timelineLayout{
			Type:     "genericPin",
			Title:    note.Message,
			Body:     fmt.Sprintf("From %s", note.SenderName),
			TinyIcon: "system://images/NOTIFICATION_FLAG",
		},
	}

	body, err := json.Marshal(pin)
	if err != nil {
		return fmt.Errorf("failed to encode timeline pin: %w", err)
	}

	url := fmt.Sprintf("%s/v1/user/pins/%s", s.baseURL, pinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build timeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Token", token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("timeline call failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("timeline API returned status %d", resp.StatusCode)
	}
	return nil
}
