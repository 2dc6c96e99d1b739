// Package clock is the builtin plugin that tells the time and sets timers.
package clock

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"cutie/internal/plugin"
	"cutie/internal/sched"
)

//go:embed properties.toml keywords.json
var manifestFS embed.FS

const (
	Service = "clock"

	defaultTimer = 5 * time.Minute
)

var numbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "fifteen": 15,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
}

var units = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second,
	"minute": time.Minute, "minutes": time.Minute,
	"hour": time.Hour, "hours": time.Hour,
}

type Clock struct {
	manifest plugin.Manifest
	now      func() time.Time
}

// New is a plugin.Factory.
func New() (plugin.Plugin, error) {
	m, err := plugin.LoadManifest(manifestFS)
	if err != nil {
		return nil, fmt.Errorf("clock manifest: %w", err)
	}
	return &Clock{manifest: m, now: time.Now}, nil
}

func (c *Clock) Manifest() plugin.Manifest { return c.manifest }

func (c *Clock) Handle(ctx context.Context, host plugin.Host, query string) error {
	if plugin.ContainsKeywords([]string{"timer"}, query) {
		return c.setTimer(ctx, host, query)
	}
	return host.Speak(ctx, Service, "It is "+c.now().Format("3:04 PM")+".")
}

func (c *Clock) setTimer(ctx context.Context, host plugin.Host, query string) error {
	d := ParseDuration(query)
	if d <= 0 {
		d = defaultTimer
	}

	trig, err := sched.NewWaitTimeTrigger(d, 1, sched.WithClock(c.now))
	if err != nil {
		return err
	}
	sched.NewFuncTask(host.Tasks(), "timer", trig, func(ctx context.Context) error {
		return host.Speak(ctx, Service, "Your timer is done.")
	})

	return host.Speak(ctx, Service, "Timer set for "+d.String()+".")
}

// ParseDuration reads spoken amounts such as "ten minutes" or "an hour".
// Unrecognised queries yield zero.
func ParseDuration(query string) time.Duration {
	var total time.Duration
	n := 0
	for _, w := range strings.Fields(query) {
		if v, ok := numbers[w]; ok {
			n += v
			continue
		}
		if u, ok := units[w]; ok && n > 0 {
			total += time.Duration(n) * u
		}
		n = 0
	}
	return total
}
