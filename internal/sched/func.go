package sched

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FuncTask runs a plain function whenever its trigger fires.
type FuncTask struct {
	id      string
	name    string
	trigger Trigger
	fn      func(ctx context.Context) error
}

// NewFuncTask creates the task and registers it with reg.
func NewFuncTask(reg *Registry, name string, trigger Trigger, fn func(ctx context.Context) error) *FuncTask {
	t := &FuncTask{
		id:      uuid.NewString(),
		name:    name,
		trigger: trigger,
		fn:      fn,
	}
	reg.Add(t)
	return t
}

func (t *FuncTask) ID() string { return t.id }
func (t *FuncTask) Name() string { return t.name }
func (t *FuncTask) Trigger() Trigger { return t.trigger }

// Due reports when the trigger next fires, or the zero time when it cannot tell.
func (t *FuncTask) Due() time.Time {
	if d, ok := t.trigger.(interface{ Due() time.Time }); ok {
		return d.Due()
	}
	return time.Time{}
}

func (t *FuncTask) Run(ctx context.Context) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx)
}
