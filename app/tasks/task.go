package tasks

import (
	"context"
	"fmt"
)

type TaskType string

const (
	TaskTypeCrawl TaskType = "crawl"
)

// Runner is the unit of work behind a Task.
type Runner interface {
	Execute(ctx context.Context) error
}

type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Task is compared by pointer: two tasks with the same name are still
// different registry entries.
type Task struct {
	Name   string
	Type   TaskType
	runner Runner
}

func NewTask(name string, taskType TaskType, runner Runner) *Task {
	return &Task{
		Name:   name,
		Type:   taskType,
		runner: runner,
	}
}

func (t *Task) Execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return t.runner.Execute(ctx)
}
