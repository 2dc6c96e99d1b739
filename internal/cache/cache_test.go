package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutie/internal/sched"
)

type fakeSynth struct {
	mu      sync.Mutex
	calls   int
	err     error
	partial bool // leave an empty output behind when failing
}

func (s *fakeSynth) Synthesize(_ context.Context, text, _, out, _ string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		if s.partial {
			os.WriteFile(out, nil, 0o644)
		}
		return s.err
	}
	return os.WriteFile(out, []byte("RIFF"+text), 0o644)
}

func (s *fakeSynth) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeCompressor struct {
	calls int
	err   error
}

func (c *fakeCompressor) Compress(_ context.Context, path string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".flac"
	return out, os.Rename(path, out)
}

type fakePlayer struct {
	played []string
	err    error
}

func (p *fakePlayer) Play(_ context.Context, path string) (time.Duration, error) {
	p.played = append(p.played, path)
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return time.Second, p.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fixture struct {
	layout Layout
	tasks  *sched.Registry
	synth  *fakeSynth
	comp   *fakeCompressor
	player *fakePlayer
	clock  *fakeClock
	res    *Resolver
}

func newFixture(t *testing.T, ledger Ledger) *fixture {
	t.Helper()
	root := t.TempDir()

	f := &fixture{
		layout: Layout{
			Temp:   filepath.Join(root, "temp"),
			Assets: filepath.Join(root, "assets"),
			Cache:  filepath.Join(root, "cache"),
		},
		tasks:  sched.NewRegistry(),
		synth:  &fakeSynth{},
		comp:   &fakeCompressor{},
		player: &fakePlayer{},
		clock:  &fakeClock{t: time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC)},
	}
	f.res = NewResolver(f.tasks, f.synth, f.comp, f.player, Config{
		Layout:     f.layout,
		Voice:      "venti",
		EvictAfter: DaysToWait(30),
		Ledger:     ledger,
		Clock:      f.clock.Now,
	})
	return f
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Hello, world!":       "hello-world",
		"Hello  world":        "hello-world",
		"  It's 5 o'clock.  ": "it-s-o-clock",
		"ÉCLAIR":              "éclair",
		"123":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestSanitize_PunctuationCollisionIsKnown(t *testing.T) {
	// replies differing only in separators intentionally share one artifact
	a := FileStem("weather", "Hello, world!")
	b := FileStem("weather", "Hello  world")
	assert.Equal(t, a, b)
	assert.Equal(t, "WEATHER_hello-world", a)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, Rare, ParseTier("rare"))
	assert.Equal(t, Asset, ParseTier("asset"))
	assert.Equal(t, Common, ParseTier("common"))
	assert.Equal(t, Builtin, ParseTier("builtin"))
	assert.Equal(t, Builtin, ParseTier("greetings"))
}

func TestLayout_Base(t *testing.T) {
	l := DefaultLayout()

	common := l.Base(Request{Service: "clock", Text: "Good morning", Type: "common"})
	assert.Equal(t, filepath.Join("cache", "responses", "common", "CLOCK_good-morning"), common)

	asset := l.Base(Request{Service: "ui", Text: "chime", Type: "asset"})
	assert.Equal(t, filepath.Join("assets", "effects", "UI_chime"), asset)

	r1 := l.Base(Request{Service: "x", Text: "a", Type: "rare"})
	r2 := l.Base(Request{Service: "x", Text: "a", Type: "rare"})
	assert.NotEqual(t, r1, r2)
	assert.Equal(t, "temp", filepath.Dir(r1))
}

func TestLoadResponseMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"clock": {"response_type": "rare"},
		"greeting": {"response_type": "common"}
	}`), 0o644))

	m, err := LoadResponseMap(path)
	require.NoError(t, err)

	assert.Equal(t, Common, m.Request("greeting", "hi").Tier())
	assert.Equal(t, Rare, m.Request("clock", "noon").Tier())
	assert.Equal(t, Rare, m.Request("unknown", "x").Tier())
}

func TestResolve_CommonGeneratesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "greeting", Text: "Hello there!", Type: "common"}

	first, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Generated)
	assert.Equal(t, ".flac", filepath.Ext(first.Path))
	assert.NoFileExists(t, strings.TrimSuffix(first.Path, ".flac")+".wav", "intermediate is removed")

	second, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Generated)
	assert.Equal(t, first.Path, second.Path)

	assert.Equal(t, 1, f.synth.Calls())
	assert.Equal(t, 1, f.comp.calls)
}

func TestResolve_BuiltinIsReusable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "system", Text: "Ready", Type: "builtin"}

	for i := 0; i < 3; i++ {
		_, err := f.res.Speak(ctx, req)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.synth.Calls())
	assert.Equal(t, 0, f.tasks.Len(), "builtin tier is never evicted")
}

func TestResolve_RareAlwaysSynthesizes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "clock", Text: "It is noon", Type: "rare"}

	for i := 0; i < 3; i++ {
		art, err := f.res.Speak(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ".wav", filepath.Ext(art.Path))
		assert.NoFileExists(t, art.Path, "rare artifact is deleted after playback")
	}

	assert.Equal(t, 3, f.synth.Calls())
	assert.Equal(t, 0, f.comp.calls, "rare artifacts are never compressed")
	assert.Equal(t, 0, f.tasks.Len())
}

func TestResolve_AssetNeverGenerated(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "ui", Text: "chime", Type: "asset"}

	_, err := f.res.Resolve(ctx, req)
	assert.ErrorIs(t, err, ErrAssetMissing)
	assert.Equal(t, 0, f.synth.Calls())

	path := filepath.Join(f.layout.Assets, "effects", "UI_chime.flac")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("fLaC"), 0o644))

	art, err := f.res.Speak(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, path, art.Path)
	assert.FileExists(t, path)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestResolve_StaleIntermediateIsCompressed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "greeting", Text: "welcome back", Type: "common"}

	look, err := f.layout.Lookup(req)
	require.NoError(t, err)
	require.Equal(t, Miss, look.State)

	require.NoError(t, os.MkdirAll(filepath.Dir(look.Raw()), 0o755))
	require.NoError(t, os.WriteFile(look.Raw(), []byte("RIFF"), 0o644))

	look, err = f.layout.Lookup(req)
	require.NoError(t, err)
	assert.Equal(t, Stale, look.State)

	art, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, look.Durable(), art.Path)
	assert.Equal(t, 0, f.synth.Calls())
	assert.Equal(t, 1, f.comp.calls)
}

func TestResolve_SynthesisFailureSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("model not loaded")
	f.synth.err = boom

	_, err := f.res.Speak(context.Background(), Request{Service: "x", Text: "y", Type: "common"})
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.player.played)
	assert.Equal(t, 0, f.tasks.Len())
}

func TestResolve_FailedSynthesisCanBeRetried(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "greeting", Text: "hello", Type: "common"}

	f.synth.err = errors.New("espeak produced no audio")
	f.synth.partial = true

	_, err := f.res.Resolve(ctx, req)
	require.ErrorIs(t, err, ErrSynthesis)

	look, err := f.layout.Lookup(req)
	require.NoError(t, err)
	assert.Equal(t, Miss, look.State, "partial output must not look like an interrupted run")

	f.synth.err = nil
	art, err := f.res.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.synth.Calls())
	assert.True(t, art.Generated)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestResolve_FailedRareSynthesisLeavesNoTempFile(t *testing.T) {
	f := newFixture(t, nil)
	f.synth.err = errors.New("espeak crashed")
	f.synth.partial = true

	_, err := f.res.Resolve(context.Background(), Request{Service: "x", Text: "y", Type: "rare"})
	require.ErrorIs(t, err, ErrSynthesis)

	entries, err := os.ReadDir(f.layout.Temp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolve_CompressionFailureSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	f.comp.err = errors.New("flac missing")

	_, err := f.res.Resolve(context.Background(), Request{Service: "x", Text: "y", Type: "common"})
	assert.ErrorIs(t, err, ErrCompression)
}

func TestResolve_ConcurrentMissesGenerateOnce(t *testing.T) {
	f := newFixture(t, nil)
	req := Request{Service: "greeting", Text: "good evening", Type: "common"}

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			art, err := f.res.Resolve(context.Background(), req)
			if assert.NoError(t, err) {
				paths[i] = art.Path
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.synth.Calls())
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
}

func TestSpeak_CommonSchedulesSingleEviction(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "greeting", Text: "Hello", Type: "common"}

	art, err := f.res.Speak(ctx, req)
	require.NoError(t, err)
	_, err = f.res.Speak(ctx, req)
	require.NoError(t, err)

	require.Equal(t, 1, f.tasks.Len(), "no duplicate eviction while one is pending")
	task, ok := f.tasks.Lookup(EvictionName(art.Path))
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(30*Day), task.(*EvictionTask).Due())
}

func TestSpeak_CommonSchedulesEvictionEvenIfPlaybackFails(t *testing.T) {
	f := newFixture(t, nil)
	f.player.err = errors.New("no output device")

	_, err := f.res.Speak(context.Background(), Request{Service: "g", Text: "hi", Type: "common"})
	assert.Error(t, err)
	assert.Equal(t, 1, f.tasks.Len())
}

func TestEviction_DeletesAfterRetentionExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	art, err := f.res.Speak(ctx, Request{Service: "greeting", Text: "Hello", Type: "common"})
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(30*Day - time.Second)
	require.NoError(t, f.tasks.Poll(ctx))
	assert.FileExists(t, art.Path)
	assert.Equal(t, 1, f.tasks.Len())

	f.clock.t = f.clock.t.Add(time.Second)
	require.NoError(t, f.tasks.Poll(ctx))
	assert.NoFileExists(t, art.Path)
	assert.Equal(t, 0, f.tasks.Len(), "single-shot eviction retires")

	require.NoError(t, f.tasks.Poll(ctx))
}

func TestEviction_MissingFileIsNotFatal(t *testing.T) {
	reg := sched.NewRegistry()
	path := filepath.Join(t.TempDir(), "gone.flac")

	_, err := ScheduleEviction(reg, path, 0, nil)
	require.NoError(t, err)

	require.NoError(t, reg.Poll(context.Background()))
	assert.Equal(t, 0, reg.Len(), "trigger still exhausts after a failed delete")
}

func TestEviction_RegenerationAfterEviction(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := Request{Service: "greeting", Text: "Hello", Type: "common"}

	_, err := f.res.Speak(ctx, req)
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(31 * Day)
	require.NoError(t, f.tasks.Poll(ctx))

	art, err := f.res.Speak(ctx, req)
	require.NoError(t, err)
	assert.True(t, art.Generated)
	assert.Equal(t, 2, f.synth.Calls())
	assert.Equal(t, 1, f.tasks.Len())
}

type memLedger struct {
	rows map[string]Eviction
}

func (l *memLedger) SaveEviction(_ context.Context, e Eviction) error {
	l.rows[e.Path] = e
	return nil
}

func (l *memLedger) DeleteEviction(_ context.Context, path string) error {
	delete(l.rows, path)
	return nil
}

func (l *memLedger) ListEvictions(context.Context) ([]Eviction, error) {
	var out []Eviction
	for _, e := range l.rows {
		out = append(out, e)
	}
	return out, nil
}

func TestRestore_KeepsOriginalSchedule(t *testing.T) {
	ledger := &memLedger{rows: map[string]Eviction{}}
	ctx := context.Background()

	f := newFixture(t, ledger)
	art, err := f.res.Speak(ctx, Request{Service: "greeting", Text: "Hello", Type: "common"})
	require.NoError(t, err)
	require.Contains(t, ledger.rows, art.Path)

	ledger.rows["/nonexistent/file.flac"] = Eviction{Path: "/nonexistent/file.flac", ScheduledAt: f.clock.Now(), Wait: Day}

	// a fresh process sharing the same ledger and clock
	tasks := sched.NewRegistry()
	res := NewResolver(tasks, f.synth, f.comp, f.player, Config{
		Layout: f.layout,
		Ledger: ledger,
		Clock:  f.clock.Now,
	})

	n, err := res.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, ledger.rows, "/nonexistent/file.flac")

	f.clock.t = f.clock.t.Add(30 * Day)
	require.NoError(t, tasks.Poll(ctx))
	assert.NoFileExists(t, art.Path)
	assert.Empty(t, ledger.rows)
}
