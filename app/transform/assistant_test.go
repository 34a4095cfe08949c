package transform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newAssistantServer(t *testing.T, threadID string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		writeJSON(w, map[string]string{"id": threadID})
	})
	mux.HandleFunc("POST /threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["role"])
		assert.Equal(t, "Title: Hello\nContent: <p>World</p>", body["content"])
		writeJSON(w, map[string]string{"id": "msg_1"})
	})
	mux.HandleFunc("POST /threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_1", body["assistant_id"])
		writeJSON(w, map[string]string{"id": "run_1", "status": "queued"})
	})
	mux.HandleFunc("GET /threads/{thread}/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("run") != "run_1" {
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]string{"id": "run_1", "status": "completed"})
	})
	mux.HandleFunc("GET /threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"role": "assistant", "content": [
				{"type": "text", "text": {"value": "{\"en\": "}},
				{"type": "image_file"},
				{"type": "text", "text": {"value": "{\"title\": \"T\", \"content\": \"C\", \"excerpt\": \"E\"}}"}}
			]},
			{"role": "user", "content": [{"type": "text", "text": {"value": "Title: Hello"}}]}
		]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAssistantBackendRoundTrip(t *testing.T) {
	server := newAssistantServer(t, "thread_abc")
	backend := NewAssistantBackend(server.URL, "sk-test", "asst_1", 5*time.Second)
	ctx := context.Background()

	handle, err := backend.Submit(ctx, "Hello", "<p>World</p>")
	require.NoError(t, err)
	assert.Equal(t, Handle{ThreadID: "thread_abc", RunID: "run_1"}, handle)

	status, err := backend.Status(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	reply, err := backend.Reply(ctx, handle)
	require.NoError(t, err)

	result, err := ParseReply(reply, []string{"en"})
	require.NoError(t, err)
	assert.Equal(t, "T", result["en"].Title)
}

func TestAssistantBackendWithTransformer(t *testing.T) {
	server := newAssistantServer(t, "thread_abc")
	backend := NewAssistantBackend(server.URL, "sk-test", "asst_1", 5*time.Second)
	transformer := NewTransformer(backend, []string{"en"}, 10*time.Millisecond, 5*time.Second)

	result, err := transformer.Transform(context.Background(), "Hello", "<p>World</p>")
	require.NoError(t, err)
	assert.Equal(t, "E", result["en"].Excerpt)
}

func TestAssistantBackendRejectsBadThreadID(t *testing.T) {
	server := newAssistantServer(t, "bogus")
	backend := NewAssistantBackend(server.URL, "sk-test", "asst_1", 5*time.Second)

	_, err := backend.Submit(context.Background(), "Hello", "<p>World</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid thread id")
}

func TestAssistantBackendStatusErrors(t *testing.T) {
	server := newAssistantServer(t, "thread_abc")
	backend := NewAssistantBackend(server.URL, "sk-test", "asst_1", 5*time.Second)

	_, err := backend.Status(context.Background(), Handle{ThreadID: "nope", RunID: "run_1"})
	require.Error(t, err)

	_, err = backend.Status(context.Background(), Handle{ThreadID: "thread_abc", RunID: "run_missing"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
