package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	statusSuccess  = "Success"
	statusFail     = "Fail"
	defaultMessage = "Parsing completed successfully"

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// MixpanelSink tracks one Mixpanel event per pipeline event, named after
// the crawler that produced it.
type MixpanelSink struct {
	client  *resty.Client
	token   string
	timeout time.Duration
}

func NewMixpanelSink(baseURL, token string, timeout time.Duration) *MixpanelSink {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/plain")

	return &MixpanelSink{
		client:  client,
		token:   token,
		timeout: timeout,
	}
}

type mixpanelEvent struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

func (s *MixpanelSink) Emit(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("verbose", "1").
		SetBody([]mixpanelEvent{s.payload(event)}).
		Post("/track")
	if err != nil {
		slog.Warn("Failed to track telemetry event", "source", event.Source, "event", event.Name, "error", err)
		return
	}
	if resp.IsError() {
		slog.Warn("Telemetry backend rejected event", "source", event.Source, "event", event.Name, "status", resp.StatusCode(), "body", resp.String())
		return
	}

	slog.Debug("Telemetry event tracked", "source", event.Source, "event", event.Name, "count", event.Count)
}

func (s *MixpanelSink) payload(event Event) mixpanelEvent {
	status := statusFail
	if event.Success {
		status = statusSuccess
	}

	message := event.Message
	if message == "" {
		message = defaultMessage
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return mixpanelEvent{
		Event: event.Source,
		Properties: map[string]any{
			"token":       s.token,
			"time":        timestamp.UnixMilli(),
			"distinct_id": event.Source,
			"$insert_id":  uuid.NewString(),
			"event_type":  event.Name,
			"posted_date": timestamp.UTC().Format(isoMillis),
			"links":       strings.Join(event.Links, ", "),
			"posts_found": event.Count,
			"status":      status,
			"message":     message,
		},
	}
}
