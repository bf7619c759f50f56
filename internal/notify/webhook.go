package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// HTTPPoster delivers webhook payloads with a plain HTTP POST.
type HTTPPoster struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPPoster creates a poster with a 30 second request timeout.
func NewHTTPPoster() *HTTPPoster {
	return &HTTPPoster{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "tessera/" + pipeline.EngineVersion,
	}
}

// Post sends body as JSON to url. Any non-2xx response is an error.
func (p *HTTPPoster) Post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post %s: unexpected status %s", url, resp.Status)
	}
	return nil
}

type webhookCell struct {
	Key          string `json:"key"`
	OS           string `json:"os"`
	Toolchain    string `json:"rust"`
	Dist         string `json:"dist,omitempty"`
	AllowFailure bool   `json:"allow_failure"`
	Status       string `json:"status"`
	DurationMS   int64  `json:"duration_ms"`
}

type webhookBody struct {
	Pipeline        string        `json:"pipeline"`
	RunID           string        `json:"run_id"`
	RunNumber       int64         `json:"run_number"`
	Outcome         string        `json:"outcome"`
	PreviousOutcome *string       `json:"previous_outcome"`
	Transition      bool          `json:"transition"`
	DurationMS      int64         `json:"duration_ms"`
	Cells           []webhookCell `json:"cells"`
}

// webhookPayload builds the JSON document posted to each webhook
// target. previous_outcome is null on a pipeline's first run.
func webhookPayload(ev Event) ([]byte, error) {
	body := webhookBody{
		Pipeline:   ev.Pipeline,
		RunID:      ev.RunID,
		RunNumber:  ev.RunNumber,
		Outcome:    string(ev.Outcome),
		Transition: ev.Transition(),
		DurationMS: ev.DurationMS,
		Cells:      make([]webhookCell, 0, len(ev.Cells)),
	}
	if ev.Previous != nil {
		prev := string(*ev.Previous)
		body.PreviousOutcome = &prev
	}
	for _, c := range ev.Cells {
		body.Cells = append(body.Cells, webhookCell{
			Key:          c.Cell.Key(),
			OS:           c.Cell.OS,
			Toolchain:    c.Cell.Toolchain,
			Dist:         c.Cell.Dist,
			AllowFailure: c.Cell.AllowFailure,
			Status:       string(c.Status),
			DurationMS:   c.DurationMS,
		})
	}
	return json.Marshal(body)
}
