package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"cutie/internal/sched"
)

const Day = 24 * time.Hour

// DaysToWait converts a retention in days to a trigger wait.
func DaysToWait(days float64) time.Duration {
	return time.Duration(days * float64(Day))
}

// Eviction is a pending removal as persisted in a Ledger.
type Eviction struct {
	Path        string
	ScheduledAt time.Time
	Wait        time.Duration
}

func (e Eviction) Due() time.Time {
	return e.ScheduledAt.Add(e.Wait)
}

// Ledger persists pending evictions across restarts.
type Ledger interface {
	SaveEviction(ctx context.Context, e Eviction) error
	DeleteEviction(ctx context.Context, path string) error
	ListEvictions(ctx context.Context) ([]Eviction, error)
}

// EvictionName is the task name used for the eviction of path.
func EvictionName(path string) string {
	return "evict:" + path
}

// EvictionTask deletes one cached artifact once its retention runs out.
type EvictionTask struct {
	id      string
	path    string
	trigger *sched.WaitTimeTrigger
	ledger  Ledger
}

// ScheduleEviction creates a single-shot eviction for path and registers it.
func ScheduleEviction(reg *sched.Registry, path string, wait time.Duration, ledger Ledger, opts ...sched.TriggerOption) (*EvictionTask, error) {
	trig, err := sched.NewWaitTimeTrigger(wait, 1, opts...)
	if err != nil {
		return nil, fmt.Errorf("eviction trigger: %w", err)
	}

	t := &EvictionTask{
		id:      uuid.NewString(),
		path:    path,
		trigger: trig,
		ledger:  ledger,
	}
	reg.Add(t)

	log.Debug("Eviction scheduled", "path", path, "due", trig.Due())
	return t, nil
}

func (t *EvictionTask) ID() string { return t.id }
func (t *EvictionTask) Name() string { return EvictionName(t.path) }
func (t *EvictionTask) Path() string { return t.path }
func (t *EvictionTask) Trigger() sched.Trigger { return t.trigger }
func (t *EvictionTask) Due() time.Time { return t.trigger.Due() }

// Run removes the artifact. A failed removal is logged and not returned:
// the lifespan counts scheduled attempts, not successful deletions.
func (t *EvictionTask) Run(ctx context.Context) error {
	err := os.Remove(t.path)
	switch {
	case err == nil:
		log.Info("Evicted cached response", "path", t.path)
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("Cached response already gone", "path", t.path)
	default:
		log.Warn("Failed to evict cached response", "path", t.path, "err", err)
	}

	if t.ledger != nil {
		if err := t.ledger.DeleteEviction(ctx, t.path); err != nil {
			log.Warn("Failed to clear eviction record", "path", t.path, "err", err)
		}
	}

	return nil
}
