package sched

import (
	"errors"
	"fmt"
	"time"
)

// Forever is the lifespan of a trigger that never runs out.
const Forever = -1

var (
	ErrTriggerExhausted = errors.New("trigger lifespan exhausted")
	ErrInvalidLifespan  = errors.New("invalid trigger lifespan")
)

// Trigger decides when the task owning it should act.
type Trigger interface {
	// Build captures the reference point the trigger measures from.
	Build()
	// Check reports whether the trigger has fired. It never blocks.
	Check() bool
	// Reset re-arms the trigger after a successful run, or returns
	// ErrTriggerExhausted when no firings remain.
	Reset() error
}

type TriggerOption func(*WaitTimeTrigger)

func WithClock(now func() time.Time) TriggerOption {
	return func(t *WaitTimeTrigger) {
		if now != nil {
			t.now = now
		}
	}
}

// WithStart backdates the first build, used when restoring a persisted schedule.
func WithStart(start time.Time) TriggerOption {
	return func(t *WaitTimeTrigger) {
		t.start = start
	}
}

// WaitTimeTrigger fires once wait has elapsed since the last Build.
type WaitTimeTrigger struct {
	wait     time.Duration
	lifespan int
	start    time.Time
	now      func() time.Time
}

func NewWaitTimeTrigger(wait time.Duration, lifespan int, opts ...TriggerOption) (*WaitTimeTrigger, error) {
	if lifespan != Forever && lifespan < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLifespan, lifespan)
	}
	if wait < 0 {
		wait = 0
	}

	t := &WaitTimeTrigger{
		wait:     wait,
		lifespan: lifespan,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.start.IsZero() {
		t.Build()
	}

	return t, nil
}

func (t *WaitTimeTrigger) Build() {
	t.start = t.now()
}

func (t *WaitTimeTrigger) Check() bool {
	return t.now().Sub(t.start) >= t.wait
}

func (t *WaitTimeTrigger) Reset() error {
	switch {
	case t.lifespan == 1:
		return ErrTriggerExhausted
	case t.lifespan > 1:
		t.lifespan--
	}

	t.Build()
	return nil
}

func (t *WaitTimeTrigger) Wait() time.Duration { return t.wait }
func (t *WaitTimeTrigger) Lifespan() int { return t.lifespan }
func (t *WaitTimeTrigger) Start() time.Time { return t.start }

// Due is the moment the trigger fires next.
func (t *WaitTimeTrigger) Due() time.Time {
	return t.start.Add(t.wait)
}
