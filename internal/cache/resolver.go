package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cutie/internal/sched"
)

var (
	ErrSynthesis    = errors.New("synthesis failed")
	ErrCompression  = errors.New("compression failed")
	ErrAssetMissing = errors.New("asset not found")
)

// Synthesizer writes a playable uncompressed audio file to out.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, out, language string) error
}

// Compressor replaces the file at path with a durable compressed sibling and
// returns the sibling's path.
type Compressor interface {
	Compress(ctx context.Context, path string) (string, error)
}

// Player plays a file to completion and reports how long it played.
type Player interface {
	Play(ctx context.Context, path string) (time.Duration, error)
}

// Artifact is a playable audio file resolved for a request.
type Artifact struct {
	Path      string
	Tier      Tier
	Generated bool
}

type Config struct {
	Layout     Layout
	Voice      string // speaker profile handed to the synthesizer
	Language   string
	EvictAfter time.Duration
	Ledger     Ledger
	Clock      func() time.Time
}

// Resolver turns reply requests into playable artifacts, generating them on a
// miss and scheduling the eviction of common ones.
type Resolver struct {
	cfg    Config
	tasks  *sched.Registry
	synth  Synthesizer
	comp   Compressor
	player Player

	group   singleflight.Group
	evictMu sync.Mutex
}

func NewResolver(tasks *sched.Registry, synth Synthesizer, comp Compressor, player Player, cfg Config) *Resolver {
	if cfg.Layout == (Layout{}) {
		cfg.Layout = DefaultLayout()
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = DaysToWait(30)
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Resolver{
		cfg:    cfg,
		tasks:  tasks,
		synth:  synth,
		comp:   comp,
		player: player,
	}
}

// Resolve returns the artifact for req. Reusable tiers are served from disk
// when present; concurrent misses for one key share a single generation.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Artifact, error) {
	tier := req.Tier()

	look, err := r.cfg.Layout.Lookup(req)
	if err != nil {
		return Artifact{}, err
	}

	if look.State == Hit {
		log.Debug("Response cache hit", "path", look.Durable())
		return Artifact{Path: look.Durable(), Tier: tier}, nil
	}

	if tier == Asset {
		return Artifact{}, fmt.Errorf("%w: %s", ErrAssetMissing, look.Durable())
	}

	if tier == Rare {
		return r.generate(ctx, req, look)
	}

	v, err, _ := r.group.Do(look.Base, func() (any, error) {
		// a previous flight may have finished between the lookup and here
		again, err := r.cfg.Layout.Lookup(req)
		if err != nil {
			return Artifact{}, err
		}
		switch again.State {
		case Hit:
			return Artifact{Path: again.Durable(), Tier: tier}, nil
		case Stale:
			return r.recover(ctx, again, tier)
		default:
			return r.generate(ctx, req, again)
		}
	})
	if err != nil {
		return Artifact{}, err
	}

	return v.(Artifact), nil
}

func (r *Resolver) generate(ctx context.Context, req Request, look Lookup) (Artifact, error) {
	raw := look.Raw()
	if err := os.MkdirAll(filepath.Dir(raw), 0o755); err != nil {
		return Artifact{}, fmt.Errorf("prepare %s: %w", filepath.Dir(raw), err)
	}

	log.Info("Generating response as none was found", "service", req.Service, "tier", req.Tier())

	if err := r.synth.Synthesize(ctx, req.Text, r.cfg.Voice, raw, r.cfg.Language); err != nil {
		// a partial intermediate would otherwise look stale on the next request
		if rmErr := os.Remove(raw); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn("Failed to remove partial response", "path", raw, "err", rmErr)
		}
		return Artifact{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	if req.Tier() == Rare {
		return Artifact{Path: raw, Tier: Rare, Generated: true}, nil
	}

	art, err := r.recover(ctx, look, req.Tier())
	if err != nil {
		return Artifact{}, err
	}
	art.Generated = true

	return art, nil
}

// recover compresses an uncompressed intermediate into its durable form.
func (r *Resolver) recover(ctx context.Context, look Lookup, tier Tier) (Artifact, error) {
	out, err := r.comp.Compress(ctx, look.Raw())
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	if out == "" {
		out = look.Durable()
	}

	return Artifact{Path: out, Tier: tier}, nil
}

// Speak resolves req and plays it. Rare artifacts are deleted after playback,
// common ones get exactly one pending eviction.
func (r *Resolver) Speak(ctx context.Context, req Request) (Artifact, error) {
	art, err := r.Resolve(ctx, req)
	if err != nil {
		return Artifact{}, err
	}

	played, playErr := r.player.Play(ctx, art.Path)

	switch art.Tier {
	case Rare:
		if err := os.Remove(art.Path); err != nil {
			log.Warn("Failed to remove single-use response", "path", art.Path, "err", err)
		}
	case Common:
		if err := r.EnsureEviction(ctx, art.Path); err != nil {
			log.Warn("Failed to schedule eviction", "path", art.Path, "err", err)
		}
	}

	if playErr != nil {
		return art, fmt.Errorf("play %s: %w", art.Path, playErr)
	}

	log.Debug("Response played", "path", art.Path, "duration", played)
	return art, nil
}

// EnsureEviction schedules the eviction of path unless one is already pending.
func (r *Resolver) EnsureEviction(ctx context.Context, path string) error {
	r.evictMu.Lock()
	defer r.evictMu.Unlock()

	if _, ok := r.tasks.Lookup(EvictionName(path)); ok {
		return nil
	}

	return r.schedule(ctx, Eviction{
		Path:        path,
		ScheduledAt: r.cfg.Clock(),
		Wait:        r.cfg.EvictAfter,
	}, true)
}

func (r *Resolver) schedule(ctx context.Context, e Eviction, persist bool) error {
	_, err := ScheduleEviction(r.tasks, e.Path, e.Wait, r.cfg.Ledger,
		sched.WithClock(r.cfg.Clock),
		sched.WithStart(e.ScheduledAt),
	)
	if err != nil {
		return err
	}

	if persist && r.cfg.Ledger != nil {
		if err := r.cfg.Ledger.SaveEviction(ctx, e); err != nil {
			return fmt.Errorf("persist eviction: %w", err)
		}
	}

	return nil
}

// Restore re-registers evictions persisted by a previous run, keeping their
// original schedule. Records whose file is gone are dropped.
func (r *Resolver) Restore(ctx context.Context) (int, error) {
	if r.cfg.Ledger == nil {
		return 0, nil
	}

	pending, err := r.cfg.Ledger.ListEvictions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list evictions: %w", err)
	}

	r.evictMu.Lock()
	defer r.evictMu.Unlock()

	restored := 0
	for _, e := range pending {
		ok, err := exists(e.Path)
		if err != nil {
			log.Warn("Skipping eviction record", "path", e.Path, "err", err)
			continue
		}
		if !ok {
			if err := r.cfg.Ledger.DeleteEviction(ctx, e.Path); err != nil {
				log.Warn("Failed to clear eviction record", "path", e.Path, "err", err)
			}
			continue
		}
		if _, ok := r.tasks.Lookup(EvictionName(e.Path)); ok {
			continue
		}

		if err := r.schedule(ctx, e, false); err != nil {
			return restored, err
		}
		restored++
	}

	return restored, nil
}
