package sched

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
)

// Task is a unit of scheduled work bound to exactly one Trigger.
type Task interface {
	Name() string
	Trigger() Trigger
	Run(ctx context.Context) error
}

// Registry holds the tracked tasks of a running assistant.
// Tasks live in the registry until their trigger runs out.
type Registry struct {
	mu    sync.Mutex
	tasks []Task
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends t. Names are not deduplicated.
func (r *Registry) Add(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = append(r.tasks, t)
	log.Debug("Task registered", "task", t.Name(), "tracked", len(r.tasks))
}

// Remove drops t and reports whether it was tracked.
func (r *Registry) Remove(t Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, cur := range r.tasks {
		if cur == t {
			r.tasks = append(r.tasks[:i:i], r.tasks[i+1:]...)
			log.Debug("Task removed", "task", t.Name(), "tracked", len(r.tasks))
			return true
		}
	}

	return false
}

// Lookup returns the first tracked task with the given name.
func (r *Registry) Lookup(name string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if t.Name() == name {
			return t, true
		}
	}

	return nil, false
}

// Tasks returns a snapshot in registration order.
func (r *Registry) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Task(nil), r.tasks...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.tasks)
}

// Check evaluates one task: if its trigger fired the task runs, and only a
// successful run resets the trigger. An exhausted trigger retires the task.
func (r *Registry) Check(ctx context.Context, t Task) error {
	trig := t.Trigger()
	if !trig.Check() {
		return nil
	}

	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("task %s: %w", t.Name(), err)
	}

	err := trig.Reset()
	if errors.Is(err, ErrTriggerExhausted) {
		r.Remove(t)
		return nil
	}

	return err
}

// Poll checks every tracked task once. It works on a snapshot, so tasks
// retiring or registering mid-poll neither skip nor repeat entries.
// Run failures do not stop the poll; they are joined and returned.
func (r *Registry) Poll(ctx context.Context) error {
	var errs []error

	for _, t := range r.Tasks() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := r.Check(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
