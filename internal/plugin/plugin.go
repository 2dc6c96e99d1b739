// Package plugin defines the contract assistant plugins implement and the
// registry that admits them according to their declared version support.
package plugin

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sort"
	"strings"
	"sync"

	"cutie/internal/sched"
)

var (
	ErrIncompatible = errors.New("plugin incompatible with assistant")
	ErrDuplicate    = errors.New("plugin already registered")
)

// Host is the part of the assistant a plugin may use while handling a query.
type Host interface {
	// Speak says text on behalf of service, through the response cache.
	Speak(ctx context.Context, service, text string) error
	// Tasks is the registry plugins schedule their own tasks into.
	Tasks() *sched.Registry
}

// Plugin is a capability the assistant routes queries to.
type Plugin interface {
	Manifest() Manifest
	Handle(ctx context.Context, host Host, query string) error
}

// Factory builds a plugin at startup.
type Factory func() (Plugin, error)

// Entry is a registered plugin with the verdict it was admitted under.
type Entry struct {
	Plugin     Plugin
	Manifest   Manifest
	Support    Support
	Overridden bool // admitted despite UnsupportedOld by operator choice
}

type Registry struct {
	assistant Version
	overrides map[string]bool

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates a registry judging plugins against the assistant version.
// Plugins named in overrides are admitted even when too old.
func NewRegistry(assistant Version, overrides ...string) *Registry {
	r := &Registry{
		assistant: assistant,
		overrides: make(map[string]bool, len(overrides)),
		entries:   make(map[string]*Entry),
	}
	for _, name := range overrides {
		r.overrides[name] = true
	}
	return r
}

// Register judges p once and admits it when allowed.
// The verdict is returned even when registration is refused.
func (r *Registry) Register(p Plugin) (Support, error) {
	m := p.Manifest()
	verdict := Compatibility(r.assistant, m.Min, m.Max)

	entry := &Entry{Plugin: p, Manifest: m, Support: verdict}

	switch {
	case verdict == UnsupportedOld && r.overrides[m.Name]:
		entry.Overridden = true
		log.Warn("Plugin too old, loading anyway by override", "plugin", m.Name, "min", m.Min, "assistant", r.assistant)
	case !verdict.Enabled():
		log.Warn("Plugin rejected", "plugin", m.Name, "support", verdict, "assistant", r.assistant)
		return verdict, fmt.Errorf("%w: %s is %s", ErrIncompatible, m.Name, verdict)
	case verdict == SupportedUnknownFuture:
		log.Warn("Plugin declares no max version, may be unstable", "plugin", m.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[m.Name]; exists {
		return verdict, fmt.Errorf("%w: %s", ErrDuplicate, m.Name)
	}
	r.entries[m.Name] = entry

	log.Info("Plugin loaded", "plugin", m.Name, "version", m.Version, "support", verdict)
	return verdict, nil
}

// Load builds and registers every factory. Failures are logged and skipped.
func (r *Registry) Load(factories ...Factory) int {
	loaded := 0
	for _, f := range factories {
		p, err := f()
		if err != nil {
			log.Error("Failed to build plugin", "err", err)
			continue
		}
		if _, err := r.Register(p); err != nil {
			continue
		}
		loaded++
	}
	return loaded
}

func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns the entries sorted by name.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// Match returns the first plugin, by name, with a keyword present as a whole
// word in query.
func (r *Registry) Match(query string) (*Entry, bool) {
	for _, e := range r.List() {
		if ContainsKeywords(e.Manifest.Keywords, query) {
			return e, true
		}
	}
	return nil, false
}

// ContainsKeywords reports whether any keyword appears as a whole word in query.
func ContainsKeywords(keywords []string, query string) bool {
	padded := " " + query + " "
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}
