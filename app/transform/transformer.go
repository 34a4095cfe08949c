package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RunStatus is the backend's view of a submitted run.
type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusCancelled  RunStatus = "cancelled"
	StatusExpired    RunStatus = "expired"
	StatusIncomplete RunStatus = "incomplete"
)

func (s RunStatus) rejected() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusExpired, StatusIncomplete:
		return true
	}
	return false
}

// Handle identifies a submitted run.
type Handle struct {
	ThreadID string
	RunID    string
}

type Backend interface {
	Submit(ctx context.Context, title, content string) (Handle, error)
	Status(ctx context.Context, h Handle) (RunStatus, error)
	Reply(ctx context.Context, h Handle) (string, error)
}

// State of one Transform call.
type State int

const (
	StateSubmitted State = iota
	StatePolling
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type Option func(*Transformer)

func WithClock(clock Clock) Option {
	return func(t *Transformer) {
		t.clock = clock
	}
}

// WithObserver registers a callback invoked on every state transition.
func WithObserver(fn func(Handle, State)) Option {
	return func(t *Transformer) {
		t.observer = fn
	}
}

// Transformer submits entries to a rewriting backend and polls for the
// reply. It holds no per-call state and may be shared between goroutines.
type Transformer struct {
	backend   Backend
	languages []string
	interval  time.Duration
	timeout   time.Duration
	clock     Clock
	observer  func(Handle, State)
}

func NewTransformer(backend Backend, languages []string, interval, timeout time.Duration, opts ...Option) *Transformer {
	t := &Transformer{
		backend:   backend,
		languages: languages,
		interval:  interval,
		timeout:   timeout,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transformer) Languages() []string {
	return t.languages
}

type run struct {
	handle Handle
	state  State
	start  time.Time
	polls  int
}

func (t *Transformer) transition(r *run, to State) {
	slog.Debug("Transform state changed", "thread", r.handle.ThreadID, "run", r.handle.RunID, "from", r.state, "to", to)
	r.state = to
	if t.observer != nil {
		t.observer(r.handle, to)
	}
}

// Transform rewrites one entry. Errors wrap ErrTimeout, ErrRejected or
// ErrParse; any other error is a transport failure worth retrying later.
func (t *Transformer) Transform(ctx context.Context, title, content string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	r := &run{start: t.clock.Now(), state: StateSubmitted}

	handle, err := t.backend.Submit(runCtx, title, content)
	if err != nil {
		return nil, t.wrapCallError(ctx, runCtx, "submit", err)
	}
	r.handle = handle
	t.transition(r, StatePolling)

	for {
		if err := runCtx.Err(); err != nil {
			return nil, t.fail(r, t.wrapCallError(ctx, runCtx, "poll", err))
		}

		status, err := t.backend.Status(runCtx, handle)
		if err != nil {
			return nil, t.fail(r, t.wrapCallError(ctx, runCtx, "poll", err))
		}
		r.polls++

		if status == StatusCompleted {
			t.transition(r, StateCompleted)
			break
		}
		if status.rejected() {
			t.transition(r, StateFailed)
			return nil, fmt.Errorf("%w: run ended with status %s", ErrRejected, status)
		}

		if t.clock.Now().Sub(r.start) > t.timeout {
			t.transition(r, StateTimedOut)
			return nil, fmt.Errorf("%w after %d polls", ErrTimeout, r.polls)
		}

		slog.Debug("Waiting for run to complete", "run", handle.RunID, "status", status)

		select {
		case <-runCtx.Done():
			return nil, t.fail(r, t.wrapCallError(ctx, runCtx, "poll", runCtx.Err()))
		case <-t.clock.After(t.interval):
		}
	}

	reply, err := t.backend.Reply(runCtx, handle)
	if err != nil {
		return nil, t.wrapCallError(ctx, runCtx, "reply", err)
	}

	return ParseReply(reply, t.languages)
}

func (t *Transformer) fail(r *run, err error) error {
	if errors.Is(err, ErrTimeout) {
		t.transition(r, StateTimedOut)
	}
	return err
}

// wrapCallError maps expiry of the run's own deadline to ErrTimeout while
// leaving cancellation of the parent context as is.
func (t *Transformer) wrapCallError(parent, runCtx context.Context, op string, err error) error {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("failed to %s run: %w", op, err)
}
