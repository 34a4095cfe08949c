// Package telemetry records pipeline milestones. Delivery is best effort:
// sinks log their own failures and never hand them back to the pipeline.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	EventBatchStarted   = "batch_started"
	EventBatchCompleted = "batch_completed"
	EventItemFailed     = "item_failed"
)

type Event struct {
	Name      string
	Source    string
	Timestamp time.Time
	Links     []string
	Count     int
	Success   bool
	Message   string
}

type Sink interface {
	Emit(ctx context.Context, event Event)
}

type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		safeEmit(ctx, sink, event)
	}
}

func safeEmit(ctx context.Context, sink Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Telemetry sink panicked", "sink", fmt.Sprintf("%T", sink), "event", event.Name, "panic", r)
		}
	}()
	sink.Emit(ctx, event)
}
