package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"cutie/internal/assistant"
	"cutie/internal/audio"
	"cutie/internal/cache"
	"cutie/internal/config"
	"cutie/internal/ipc"
	"cutie/internal/nlu"
	"cutie/internal/notify"
	"cutie/internal/plugin"
	"cutie/internal/plugins/clock"
	"cutie/internal/proxy"
	"cutie/internal/sched"
	"cutie/internal/store"
	"cutie/internal/tts"
	"cutie/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

var builtins = map[string]plugin.Factory{
	"clock": clock.New,
}

func main() {
	configPath := cli.StringP("config", "c", "cutie.yaml", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	listMics := cli.Bool("list-mics", false, "List input devices and exit")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	version, err := plugin.ParseVersion(cfg.Version)
	if err != nil {
		log.Error("Bad assistant version", "err", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder(audio.RecorderOptions{
		DeviceIndex:    cfg.Listen.DeviceIndex,
		Timeout:        cfg.Listen.Timeout,
		PhraseLimit:    cfg.Listen.PhraseLimit,
		PauseThreshold: cfg.Listen.PauseThreshold,
	})
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	if *listMics {
		printMics()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modelPath := stt.ModelPath(cfg.Listen.ModelDir, "", cfg.TTS.Language)
	whisper, err := stt.NewTranscriber(modelPath, stt.Options{Language: cfg.TTS.Language})
	if err != nil {
		log.Error("Failed to init whisper", "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper", "model", modelPath)

	db, err := store.Open(cfg.StatePath)
	if err != nil {
		log.Error("Failed to open state", "path", cfg.StatePath, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	responses, err := cache.LoadResponseMap(cfg.Paths.ResponseMap)
	if err != nil {
		log.Warn("No response map, every reply is rare", "err", err)
		responses = cache.ResponseMap{}
	}

	var ducker *audio.Ducker
	if cfg.Playback.Duck {
		ducker = audio.NewDucker([]string{"cutie"}, cfg.Playback.DuckMin)
	}
	player := audio.NewPlayer(audio.PlayerOptions{
		Ducker:     ducker,
		DuckFactor: cfg.Playback.DuckFactor,
		Fade:       cfg.Playback.Fade,
	})

	tasks := sched.NewRegistry()
	resolver := cache.NewResolver(tasks, tts.NewESpeak(cfg.TTS.Binary), tts.NewFlac(cfg.TTS.Flac), player, cache.Config{
		Layout: cache.Layout{
			Temp:   cfg.Paths.Temp,
			Assets: cfg.Paths.Assets,
			Cache:  cfg.Paths.Cache,
		},
		Voice:      cfg.TTS.Voice,
		Language:   cfg.TTS.Language,
		EvictAfter: cache.DaysToWait(cfg.Cache.EvictAfterDays),
		Ledger:     db,
	})

	n, err := resolver.Restore(ctx)
	if err != nil {
		log.Error("Failed to restore evictions", "err", err)
	}
	log.Debug("Restored evictions", "count", n)

	plugins := plugin.NewRegistry(version, cfg.Plugins.Override...)
	plugins.Load(enabledPlugins(cfg.Plugins.Disabled)...)

	l := &listener{rec: rec, tr: whisper}
	opts := []assistant.Option{
		assistant.WithListener(l),
		assistant.WithChime(notify.NewChime(player, cfg.Paths.Chime)),
	}

	if cfg.NLU.Enabled {
		answerer, err := newAnswerer(cfg.NLU)
		if err != nil {
			log.Error("Failed to init NLU", "err", err)
			os.Exit(1)
		}
		opts = append(opts, assistant.WithAnswerer(answerer))
	}

	a := assistant.New(assistant.Options{
		Version:      version,
		WakeWord:     cfg.Listen.WakeWord,
		PollInterval: cfg.PollInterval,
		Continuous:   cfg.Listen.Continuous,
		Responses:    responses,
	}, tasks, plugins, resolver, opts...)

	srv, err := ipc.Listen(cfg.Socket, func(req ipc.Request) ipc.Reply {
		if req.Cmd == "transcribe" {
			return handleTranscribe(ctx, l, req)
		}
		return a.Submit(ctx, req)
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful")

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Assistant stopped", "err", err)
		os.Exit(1)
	}

	log.Info("Shutting down")
}

func enabledPlugins(disabled []string) []plugin.Factory {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	var out []plugin.Factory
	for name, f := range builtins {
		if skip[name] {
			log.Info("Plugin disabled", "plugin", name)
			continue
		}
		out = append(out, f)
	}
	return out
}

func newAnswerer(cfg config.NLUConfig) (*nlu.Answerer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}

	httpClient, err := proxy.NewClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	)
	return nlu.NewAnswerer(client, cfg.Model), nil
}

func handleTranscribe(ctx context.Context, l *listener, req ipc.Request) ipc.Reply {
	if len(req.Args) != 1 {
		return ipc.Errorf("usage: transcribe <file>")
	}

	text, err := l.TranscribeFile(ctx, req.Args[0])
	if err != nil {
		return ipc.Errorf("%v", err)
	}
	return ipc.Reply{OK: true, Lines: []string{text}}
}

func printMics() {
	devices, err := audio.ListInputDevices()
	if err != nil {
		log.Error("Failed to list input devices", "err", err)
		os.Exit(1)
	}
	for _, d := range devices {
		fmt.Printf("%d\t%s\n", d.Index, d.Name)
	}
}
