package tasks

import (
	"context"
	"time"
)

// TaskSchedulerInterface is what the control surface needs from the
// scheduler.
// Example usage:
//
//	trigger, _ := NewCronTriggerFactory("0 * * * *", time.UTC)
//	scheduler := NewScheduler(trigger, WithTaskTimeout(30*time.Minute))
//	defer scheduler.Close()
//	scheduler.AddTask(crawler.Task())
type TaskSchedulerInterface interface {
	AddTask(task *Task) bool
	RemoveTask(task *Task) bool
	Contains(task *Task) bool
	Tasks() []*Task
	Armed() bool
	Next() time.Time
	RunSequentially(ctx context.Context) bool
	RunTask(ctx context.Context, task *Task) bool
	RunTaskAsync(task *Task) bool
	Close()
}
