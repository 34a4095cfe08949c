package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	s.events = append(s.events, event)
}

type panickingSink struct{}

func (panickingSink) Emit(context.Context, Event) {
	panic("boom")
}

func TestMixpanelSinkPayload(t *testing.T) {
	var received []mixpanelEvent

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/track", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"status": 1}`))
	}))
	defer server.Close()

	sink := NewMixpanelSink(server.URL, "tok", time.Second)
	sink.Emit(context.Background(), Event{
		Name:      EventBatchCompleted,
		Source:    "FinTechNews",
		Timestamp: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
		Links:     []string{"https://a", "https://b"},
		Count:     2,
		Success:   true,
	})

	require.Len(t, received, 1)
	event := received[0]
	assert.Equal(t, "FinTechNews", event.Event)
	assert.Equal(t, "tok", event.Properties["token"])
	assert.Equal(t, "2024-03-05T10:30:00.000Z", event.Properties["posted_date"])
	assert.Equal(t, "https://a, https://b", event.Properties["links"])
	assert.Equal(t, float64(2), event.Properties["posts_found"])
	assert.Equal(t, "Success", event.Properties["status"])
	assert.Equal(t, defaultMessage, event.Properties["message"])
	assert.Equal(t, EventBatchCompleted, event.Properties["event_type"])
	assert.NotEmpty(t, event.Properties["$insert_id"])
}

func TestMixpanelSinkSwallowsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	server.Close()

	sink := NewMixpanelSink(server.URL, "tok", 100*time.Millisecond)
	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), Event{Name: EventItemFailed, Source: "src", Message: "boom"})
	})
}

func TestMetricsSinkCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewMetricsSink(reg)

	sink.Emit(context.Background(), Event{Name: EventBatchCompleted, Source: "src", Count: 3, Success: true})
	sink.Emit(context.Background(), Event{Name: EventItemFailed, Source: "src", Count: 1})
	sink.Emit(context.Background(), Event{Name: EventItemFailed, Source: "src", Count: 1})

	assert.Equal(t, float64(1), testutil.ToFloat64(sink.events.WithLabelValues(EventBatchCompleted, "src", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(sink.events.WithLabelValues(EventItemFailed, "src", "fail")))
	assert.Equal(t, float64(3), testutil.ToFloat64(sink.items.WithLabelValues(EventBatchCompleted, "src")))
}

func TestMultiIsolatesPanics(t *testing.T) {
	first := &recordingSink{}
	last := &recordingSink{}

	multi := Multi{first, panickingSink{}, last, Nop{}}
	assert.NotPanics(t, func() {
		multi.Emit(context.Background(), Event{Name: EventBatchStarted, Source: "src"})
	})

	assert.Len(t, first.events, 1)
	assert.Len(t, last.events, 1)
}
