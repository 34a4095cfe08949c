package tasks

import (
	"fmt"
	"slices"
	"time"
)

// Catalog is the fixed set of tasks that can be started by name.
type Catalog struct {
	tasks map[string]*Task
	names []string
}

func NewCatalog(tasks ...*Task) (*Catalog, error) {
	c := &Catalog{tasks: make(map[string]*Task, len(tasks))}
	for _, task := range tasks {
		if _, exists := c.tasks[task.Name]; exists {
			return nil, fmt.Errorf("duplicate task name %q", task.Name)
		}
		c.tasks[task.Name] = task
		c.names = append(c.names, task.Name)
	}
	slices.Sort(c.names)
	return c, nil
}

func (c *Catalog) Get(name string) (*Task, bool) {
	task, ok := c.tasks[name]
	return task, ok
}

// Names returns the catalog entries sorted by name.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

type Result int

const (
	ResultUnknown Result = iota
	ResultStarted
	ResultAlreadyStarted
	ResultStopped
	ResultAlreadyStopped
	ResultTriggered
	ResultBusy
)

func (r Result) String() string {
	switch r {
	case ResultStarted:
		return "started"
	case ResultAlreadyStarted:
		return "already started"
	case ResultStopped:
		return "stopped"
	case ResultAlreadyStopped:
		return "already stopped"
	case ResultTriggered:
		return "triggered"
	case ResultBusy:
		return "busy"
	default:
		return "unknown"
	}
}

type TaskStatus struct {
	Name   string
	Type   TaskType
	Active bool
}

type Status struct {
	Armed   bool
	NextRun time.Time
	Tasks   []TaskStatus
}

// Controller maps task names onto scheduler registrations.
type Controller struct {
	scheduler TaskSchedulerInterface
	catalog   *Catalog
}

func NewController(scheduler TaskSchedulerInterface, catalog *Catalog) *Controller {
	return &Controller{
		scheduler: scheduler,
		catalog:   catalog,
	}
}

func (c *Controller) Start(name string) Result {
	task, ok := c.catalog.Get(name)
	if !ok {
		return ResultUnknown
	}
	if !c.scheduler.AddTask(task) {
		return ResultAlreadyStarted
	}
	return ResultStarted
}

func (c *Controller) Stop(name string) Result {
	task, ok := c.catalog.Get(name)
	if !ok {
		return ResultUnknown
	}
	if !c.scheduler.RemoveTask(task) {
		return ResultAlreadyStopped
	}
	return ResultStopped
}

// RunNow runs the named task in the background whether or not it is
// registered.
func (c *Controller) RunNow(name string) Result {
	task, ok := c.catalog.Get(name)
	if !ok {
		return ResultUnknown
	}
	if !c.scheduler.RunTaskAsync(task) {
		return ResultBusy
	}
	return ResultTriggered
}

func (c *Controller) Status() Status {
	status := Status{
		Armed:   c.scheduler.Armed(),
		NextRun: c.scheduler.Next(),
	}
	for _, name := range c.catalog.Names() {
		task, _ := c.catalog.Get(name)
		status.Tasks = append(status.Tasks, TaskStatus{
			Name:   task.Name,
			Type:   task.Type,
			Active: c.scheduler.Contains(task),
		})
	}
	return status
}
