// Package assistant holds the running assistant: its tracked tasks, loaded
// plugins and response pipeline, and the loop that drives them.
package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"cutie/internal/cache"
	"cutie/internal/ipc"
	"cutie/internal/plugin"
	"cutie/internal/sched"
)

var (
	ErrNoSpeech = errors.New("heard nothing")
	ErrNoDevice = errors.New("failed to open microphone")
)

// Listener records one utterance and returns its transcript.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Answerer replies to queries no plugin handles.
type Answerer interface {
	Answer(ctx context.Context, query string) (string, error)
}

// Speaker is satisfied by *cache.Resolver.
type Speaker interface {
	Speak(ctx context.Context, req cache.Request) (cache.Artifact, error)
}

type Notifier interface {
	Ring(ctx context.Context) error
}

const selfService = "assistant"

type Options struct {
	Version      plugin.Version
	WakeWord     string
	PollInterval time.Duration
	Continuous   bool // listen on every loop iteration
	Responses    cache.ResponseMap
}

type Option func(*Assistant)

func WithListener(l Listener) Option { return func(a *Assistant) { a.listener = l } }
func WithAnswerer(an Answerer) Option { return func(a *Assistant) { a.answerer = an } }
func WithChime(n Notifier) Option { return func(a *Assistant) { a.chime = n } }

type command struct {
	req   ipc.Request
	reply chan ipc.Reply
}

type Assistant struct {
	opt      Options
	tasks    *sched.Registry
	plugins  *plugin.Registry
	speaker  Speaker
	listener Listener
	answerer Answerer
	chime    Notifier

	commands chan command
}

func New(opt Options, tasks *sched.Registry, plugins *plugin.Registry, speaker Speaker, opts ...Option) *Assistant {
	if opt.WakeWord == "" {
		opt.WakeWord = "execute"
	}
	if opt.PollInterval <= 0 {
		opt.PollInterval = time.Second
	}

	a := &Assistant{
		opt:      opt,
		tasks:    tasks,
		plugins:  plugins,
		speaker:  speaker,
		commands: make(chan command),
	}
	for _, o := range opts {
		o(a)
	}

	return a
}

func (a *Assistant) Version() plugin.Version { return a.opt.Version }
func (a *Assistant) Tasks() *sched.Registry { return a.tasks }
func (a *Assistant) Plugins() *plugin.Registry { return a.plugins }

// Speak says text for service, classified by the response map.
func (a *Assistant) Speak(ctx context.Context, service, text string) error {
	_, err := a.speaker.Speak(ctx, a.opt.Responses.Request(service, text))
	return err
}

// RunChecks polls every tracked task once. Failures are logged, never fatal.
func (a *Assistant) RunChecks(ctx context.Context) {
	if err := a.tasks.Poll(ctx); err != nil && ctx.Err() == nil {
		log.Error("Task check failed", "err", err)
	}
}

// Run drives the assistant until ctx is done.
func (a *Assistant) Run(ctx context.Context) error {
	log.Info("Assistant running", "version", a.opt.Version, "continuous", a.opt.Continuous)

	ticker := time.NewTicker(a.opt.PollInterval)
	defer ticker.Stop()

	for {
		a.RunChecks(ctx)

		if a.opt.Continuous && a.listener != nil {
			a.ListenOnce(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-a.commands:
			cmd.reply <- a.Dispatch(ctx, cmd.req)
		case <-ticker.C:
		}
	}
}

// ListenOnce records and handles a single query.
func (a *Assistant) ListenOnce(ctx context.Context) {
	if a.listener == nil {
		log.Warn("No listener configured")
		return
	}

	if a.chime != nil {
		if err := a.chime.Ring(ctx); err != nil {
			log.Debug("Chime failed", "err", err)
		}
	}

	query, err := a.listener.Listen(ctx)
	switch {
	case errors.Is(err, ErrNoSpeech):
		log.Info("Heard nothing")
		return
	case errors.Is(err, ErrNoDevice):
		log.Error("Failed to open microphone", "err", err)
		return
	case err != nil:
		log.Warn("Failed to recognize speech", "err", err)
		return
	}

	if err := a.HandleQuery(ctx, query); err != nil {
		log.Error("Failed to handle query", "query", query, "err", err)
	}
}

// HandleQuery acts on a transcript that contains the wake word.
func (a *Assistant) HandleQuery(ctx context.Context, transcript string) error {
	query := CleanQuery(transcript)
	if query == "" || !plugin.ContainsKeywords([]string{a.opt.WakeWord}, query) {
		return nil
	}

	log.Info("Query", "text", query)
	return a.CheckQuery(ctx, query)
}

// CheckQuery routes a query to the plugin whose keywords it contains, or to
// the answerer when no plugin claims it.
func (a *Assistant) CheckQuery(ctx context.Context, query string) error {
	if e, ok := a.plugins.Match(query); ok {
		log.Debug("Routing query", "plugin", e.Manifest.Name)
		if err := e.Plugin.Handle(ctx, a, query); err != nil {
			return fmt.Errorf("plugin %s: %w", e.Manifest.Name, err)
		}
		return nil
	}

	if a.answerer == nil {
		log.Info("No plugin handles query", "query", query)
		return nil
	}

	answer, err := a.answerer.Answer(ctx, query)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	return a.Speak(ctx, selfService, answer)
}

// Submit hands a control request to the loop and waits for its reply.
func (a *Assistant) Submit(ctx context.Context, req ipc.Request) ipc.Reply {
	cmd := command{req: req, reply: make(chan ipc.Reply, 1)}

	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return ipc.Errorf("assistant busy: %v", ctx.Err())
	}

	select {
	case r := <-cmd.reply:
		return r
	case <-ctx.Done():
		return ipc.Errorf("no reply: %v", ctx.Err())
	}
}

// Dispatch executes a control request on the calling goroutine.
func (a *Assistant) Dispatch(ctx context.Context, req ipc.Request) ipc.Reply {
	switch req.Cmd {
	case "listen":
		a.ListenOnce(ctx)
		return ipc.Reply{OK: true}

	case "query":
		if err := a.CheckQuery(ctx, CleanQuery(strings.Join(req.Args, " "))); err != nil {
			return ipc.Errorf("%v", err)
		}
		return ipc.Reply{OK: true}

	case "say":
		if len(req.Args) < 2 {
			return ipc.Errorf("usage: say <service> <text>")
		}
		if err := a.Speak(ctx, req.Args[0], strings.Join(req.Args[1:], " ")); err != nil {
			return ipc.Errorf("%v", err)
		}
		return ipc.Reply{OK: true}

	case "tasks":
		return ipc.Reply{OK: true, Lines: a.describeTasks()}

	case "plugins":
		return ipc.Reply{OK: true, Lines: a.describePlugins()}

	default:
		return ipc.Errorf("unknown command %q", req.Cmd)
	}
}

func (a *Assistant) describeTasks() []string {
	var lines []string
	for _, t := range a.tasks.Tasks() {
		line := t.Name()
		if id, ok := t.(interface{ ID() string }); ok {
			line += "\t" + id.ID()
		}
		if d, ok := t.(interface{ Due() time.Time }); ok && !d.Due().IsZero() {
			line += "\tdue " + d.Due().Format(time.RFC3339)
		}
		lines = append(lines, line)
	}
	return lines
}

func (a *Assistant) describePlugins() []string {
	var lines []string
	for _, e := range a.plugins.List() {
		line := fmt.Sprintf("%s\t%s\t%s", e.Manifest.Name, e.Manifest.Version, e.Support)
		if e.Overridden {
			line += " (overridden)"
		}
		lines = append(lines, line)
	}
	return lines
}
