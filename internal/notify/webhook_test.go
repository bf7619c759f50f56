package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

func TestHTTPPosterPost(t *testing.T) {
	var (
		gotMethod      string
		gotContentType string
		gotUserAgent   string
		gotBody        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	poster := NewHTTPPoster()
	err := poster.Post(context.Background(), server.URL, []byte(`{"ok":true}`))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "tessera/"+pipeline.EngineVersion, gotUserAgent)
	assert.JSONEq(t, `{"ok":true}`, string(gotBody))
}

func TestHTTPPosterNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	poster := NewHTTPPoster()
	err := poster.Post(context.Background(), server.URL, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPPosterConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // refuse from here on

	poster := NewHTTPPoster()
	err := poster.Post(context.Background(), url, []byte(`{}`))
	require.Error(t, err)
}

func TestWebhookPayload(t *testing.T) {
	ev := sampleEvent()
	ev.Cells[1].DurationMS = 1500

	raw, err := webhookPayload(ev)
	require.NoError(t, err)

	var body webhookBody
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, "privcount", body.Pipeline)
	assert.Equal(t, ev.RunID, body.RunID)
	assert.Equal(t, int64(12), body.RunNumber)
	assert.Equal(t, "failed", body.Outcome)
	require.NotNil(t, body.PreviousOutcome)
	assert.Equal(t, "success", *body.PreviousOutcome)
	assert.True(t, body.Transition)
	assert.Equal(t, int64(83_449), body.DurationMS)

	require.Len(t, body.Cells, 2)
	assert.Equal(t, webhookCell{
		Key:       "linux/stable",
		OS:        "linux",
		Toolchain: "stable",
		Status:    "passed",
	}, body.Cells[0])
	assert.Equal(t, webhookCell{
		Key:          "linux/nightly",
		OS:           "linux",
		Toolchain:    "nightly",
		AllowFailure: true,
		Status:       "failed",
		DurationMS:   1500,
	}, body.Cells[1])
}

func TestWebhookPayloadFirstRun(t *testing.T) {
	ev := sampleEvent()
	ev.Previous = nil

	raw, err := webhookPayload(ev)
	require.NoError(t, err)

	// previous_outcome must be an explicit null, not omitted.
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	prev, ok := generic["previous_outcome"]
	require.True(t, ok)
	assert.Equal(t, "null", string(prev))
}
