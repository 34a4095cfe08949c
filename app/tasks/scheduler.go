package tasks

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var (
	ErrBusy   = errors.New("a firing is already in flight")
	ErrClosed = errors.New("scheduler is closed")
)

// Scheduler owns an ordered task registry and a single recurring trigger.
// The trigger exists exactly while the registry is non-empty. Every firing
// runs the registered tasks one after another; a firing that arrives while
// the previous one is still running is dropped.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*Task
	factory TriggerFactory
	trigger Trigger
	closed  bool

	inflight chan struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	metrics     *Metrics
	taskTimeout time.Duration
}

type Option func(*Scheduler)

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithTaskTimeout bounds every task execution. Zero means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.taskTimeout = d
	}
}

func NewScheduler(factory TriggerFactory, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		factory:  factory,
		inflight: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) AddTask(task *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.tasks, task) {
		return false
	}

	s.tasks = append(s.tasks, task)
	s.manageTriggerLifecycle()

	slog.Info("Task registered", "type", string(task.Type), "task", task.Name, "registered", len(s.tasks))
	return true
}

func (s *Scheduler) RemoveTask(task *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.tasks, task)
	if i < 0 {
		return false
	}

	s.tasks = slices.Delete(s.tasks, i, i+1)
	s.manageTriggerLifecycle()

	slog.Info("Task deregistered", "type", string(task.Type), "task", task.Name, "registered", len(s.tasks))
	return true
}

func (s *Scheduler) Contains(task *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Contains(s.tasks, task)
}

// Tasks returns a snapshot of the registry in registration order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.tasks)
}

func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.trigger != nil
}

// Next reports the next scheduled firing, or the zero time when idle.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trigger == nil {
		return time.Time{}
	}
	return s.trigger.Next()
}

// manageTriggerLifecycle must be called with mu held.
func (s *Scheduler) manageTriggerLifecycle() {
	switch {
	case len(s.tasks) > 0 && s.trigger == nil && !s.closed:
		s.trigger = s.factory(s.fire)
		slog.Info("Scheduler armed", "next_run", s.trigger.Next())
	case len(s.tasks) == 0 && s.trigger != nil:
		s.trigger.Stop()
		s.trigger = nil
		slog.Info("Scheduler idle")
	}
}

func (s *Scheduler) fire() {
	s.RunSequentially(s.ctx)
}

// RunSequentially runs every registered task once, in registration order.
// Failures are logged and never stop the remaining tasks. It returns false
// when the firing was skipped.
func (s *Scheduler) RunSequentially(ctx context.Context) bool {
	if err := s.begin(); err != nil {
		s.skipped("firing", err)
		return false
	}
	defer s.end()

	s.metrics.fired()

	snapshot := s.Tasks()
	runID := uuid.NewString()
	slog.Debug("Firing started", "run_id", runID, "tasks", len(snapshot))

	failed := 0
	for _, task := range snapshot {
		if ctx.Err() != nil {
			slog.Warn("Firing cancelled", "run_id", runID, "error", ctx.Err())
			break
		}
		if err := s.execute(ctx, runID, task); err != nil {
			failed++
		}
	}

	slog.Debug("Firing finished", "run_id", runID, "tasks", len(snapshot), "failed", failed)
	return true
}

// RunTask executes a single task now, under the same overlap guard as
// scheduled firings. The task does not need to be registered.
func (s *Scheduler) RunTask(ctx context.Context, task *Task) bool {
	if err := s.begin(); err != nil {
		s.skipped("manual run", err)
		return false
	}
	defer s.end()

	s.execute(ctx, uuid.NewString(), task)
	return true
}

// RunTaskAsync is RunTask on a background goroutine bound to the
// scheduler's lifetime. The guard is taken before it returns.
func (s *Scheduler) RunTaskAsync(task *Task) bool {
	if err := s.begin(); err != nil {
		s.skipped("manual run", err)
		return false
	}

	go func() {
		defer s.end()
		s.execute(s.ctx, uuid.NewString(), task)
	}()
	return true
}

// Close disarms the trigger, cancels the running firing and waits for it.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.trigger != nil {
		s.trigger.Stop()
		s.trigger = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.inflight <- struct{}{}:
		s.wg.Add(1)
		return nil
	default:
		return ErrBusy
	}
}

func (s *Scheduler) end() {
	<-s.inflight
	s.wg.Done()
}

func (s *Scheduler) skipped(kind string, err error) {
	if errors.Is(err, ErrBusy) {
		slog.Warn("Previous firing still running, skipping", "kind", kind)
		s.metrics.skip()
		return
	}
	slog.Debug("Scheduler closed, skipping", "kind", kind)
}

func (s *Scheduler) execute(ctx context.Context, runID string, task *Task) error {
	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if s.taskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, s.taskTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	start := time.Now()
	err := task.Execute(taskCtx)
	elapsed := time.Since(start)

	s.metrics.observe(task.Name, elapsed, err)

	if err != nil {
		slog.Error("Task execution failed", "type", string(task.Type), "task", task.Name, "run_id", runID, "duration", elapsed.String(), "error", err)
		return err
	}

	slog.Info("Task completed", "type", string(task.Type), "task", task.Name, "run_id", runID, "duration", elapsed.String())
	return nil
}
