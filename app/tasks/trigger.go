package tasks

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger is a live recurring timer. Stop prevents future firings without
// waiting for one in flight.
type Trigger interface {
	Stop()
	Next() time.Time
}

// TriggerFactory arms a new trigger that calls fire on every tick.
type TriggerFactory func(fire func()) Trigger

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type cronTrigger struct {
	cron *cron.Cron
	id   cron.EntryID
}

func (t *cronTrigger) Stop() {
	t.cron.Stop()
}

func (t *cronTrigger) Next() time.Time {
	return t.cron.Entry(t.id).Next
}

// NewCronTriggerFactory validates spec (five or six fields, or a descriptor
// such as @hourly) and returns a factory of cron triggers evaluated in loc.
func NewCronTriggerFactory(spec string, loc *time.Location) (TriggerFactory, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	return func(fire func()) Trigger {
		c := cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))
		id := c.Schedule(schedule, cron.FuncJob(fire))
		c.Start()
		return &cronTrigger{cron: c, id: id}
	}, nil
}
