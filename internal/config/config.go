// Package config defines the assistant configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Version      string         `yaml:"version"` // running assistant version
	PollInterval time.Duration  `yaml:"poll_interval"`
	Paths        PathsConfig    `yaml:"paths"`
	TTS          TTSConfig      `yaml:"tts"`
	Cache        CacheConfig    `yaml:"cache"`
	Listen       ListenConfig   `yaml:"listen"`
	Playback     PlaybackConfig `yaml:"playback"`
	NLU          NLUConfig      `yaml:"nlu"`
	Plugins      PluginsConfig  `yaml:"plugins"`
	Socket       string         `yaml:"socket"`
	StatePath    string         `yaml:"state_path"`
}

type PathsConfig struct {
	Temp        string `yaml:"temp"`
	Assets      string `yaml:"assets"`
	Cache       string `yaml:"cache"`
	ResponseMap string `yaml:"response_map"`
	Chime       string `yaml:"chime"`
}

type TTSConfig struct {
	Binary   string `yaml:"binary"` // espeak-ng executable
	Voice    string `yaml:"voice"`  // voice profile passed to the engine
	Language string `yaml:"language"`
	Flac     string `yaml:"flac"` // flac executable
}

type CacheConfig struct {
	EvictAfterDays float64 `yaml:"evict_after_days"`
}

type ListenConfig struct {
	Continuous     bool          `yaml:"continuous"`
	DeviceIndex    int           `yaml:"device_index"` // -1 selects the default input
	Timeout        time.Duration `yaml:"timeout"`      // wait for speech to start
	PhraseLimit    time.Duration `yaml:"phrase_limit"`
	PauseThreshold time.Duration `yaml:"pause_threshold"`
	ModelDir       string        `yaml:"model_dir"`
	WakeWord       string        `yaml:"wake_word"`
}

type PlaybackConfig struct {
	Duck       bool          `yaml:"duck"`
	DuckFactor float64       `yaml:"duck_factor"`
	DuckMin    int           `yaml:"duck_min"`
	Fade       time.Duration `yaml:"fade"`
}

type NLUConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	Proxy   string `yaml:"proxy"` // SOCKS5 address, empty for direct
}

type PluginsConfig struct {
	Override []string `yaml:"override"` // plugin names admitted even when too old
	Disabled []string `yaml:"disabled"`
}

func Default() *Config {
	return &Config{
		Version:      "0.1.0",
		PollInterval: time.Second,
		Paths: PathsConfig{
			Temp:        "temp",
			Assets:      "assets",
			Cache:       "cache",
			ResponseMap: "assets/service_response_map.json",
			Chime:       "assets/effects/chime.mp3",
		},
		TTS: TTSConfig{
			Binary:   "espeak-ng",
			Voice:    "en-us",
			Language: "en",
			Flac:     "flac",
		},
		Cache: CacheConfig{
			EvictAfterDays: 30,
		},
		Listen: ListenConfig{
			DeviceIndex:    -1,
			Timeout:        2 * time.Second,
			PhraseLimit:    5 * time.Second,
			PauseThreshold: time.Second,
			ModelDir:       "third_party/whisper.cpp/models",
			WakeWord:       "execute",
		},
		Playback: PlaybackConfig{
			Duck:       true,
			DuckFactor: 0.3,
			DuckMin:    10,
			Fade:       300 * time.Millisecond,
		},
		NLU: NLUConfig{
			Model: "gpt-5-nano",
		},
		Socket:    "/tmp/cutie.sock",
		StatePath: "cache/state.db",
	}
}

// Load reads the YAML file at path over the defaults and then applies
// CUTIE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"CUTIE_VERSION":      &c.Version,
		"CUTIE_VOICE":        &c.TTS.Voice,
		"CUTIE_LANGUAGE":     &c.TTS.Language,
		"CUTIE_SOCKET":       &c.Socket,
		"CUTIE_STATE_PATH":   &c.StatePath,
		"CUTIE_MODEL_DIR":    &c.Listen.ModelDir,
		"CUTIE_NLU_PROXY":    &c.NLU.Proxy,
		"CUTIE_RESPONSE_MAP": &c.Paths.ResponseMap,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("CUTIE_MIC_INDEX"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CUTIE_MIC_INDEX: %w", err)
		}
		c.Listen.DeviceIndex = n
	}

	if v, ok := os.LookupEnv("CUTIE_EVICT_AFTER_DAYS"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("CUTIE_EVICT_AFTER_DAYS: %w", err)
		}
		c.Cache.EvictAfterDays = n
	}

	if v, ok := os.LookupEnv("CUTIE_NLU"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CUTIE_NLU: %w", err)
		}
		c.NLU.Enabled = b
	}

	return nil
}

// maxEvictAfterDays is the longest retention a time.Duration can hold.
const maxEvictAfterDays = math.MaxInt64 / float64(24*time.Hour)

func (c *Config) Validate() error {
	if c.Cache.EvictAfterDays <= 0 {
		return fmt.Errorf("cache.evict_after_days must be positive, got %v", c.Cache.EvictAfterDays)
	}
	if c.Cache.EvictAfterDays >= maxEvictAfterDays {
		return fmt.Errorf("cache.evict_after_days must be below %.0f, got %v", maxEvictAfterDays, c.Cache.EvictAfterDays)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.Listen.WakeWord == "" {
		return errors.New("listen.wake_word is required")
	}
	return nil
}
