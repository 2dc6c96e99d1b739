package plugin

import (
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
)

const (
	PropertiesFile = "properties.toml"
	KeywordsFile   = "keywords.json"
)

// Manifest is what a plugin declares about itself.
type Manifest struct {
	Name     string
	Version  Version
	Min      *Version // lowest supported assistant version, nil if unbounded
	Max      *Version // highest supported assistant version, nil if unbounded
	Keywords []string
	Features []string // experimental assistant features the plugin relies on
}

type properties struct {
	Plugin struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
	} `toml:"plugin"`
	Assistant struct {
		Version struct {
			Min any `toml:"min"`
			Max any `toml:"max"`
		} `toml:"version"`
		Features []string `toml:"features"`
	} `toml:"assistant"`
}

// LoadManifest reads properties.toml and keywords.json from the root of fsys.
func LoadManifest(fsys fs.FS) (Manifest, error) {
	var props properties
	if _, err := toml.DecodeFS(fsys, PropertiesFile, &props); err != nil {
		return Manifest{}, fmt.Errorf("decode %s: %w", PropertiesFile, err)
	}

	if props.Plugin.Name == "" {
		return Manifest{}, fmt.Errorf("%s: plugin.name is required", PropertiesFile)
	}

	m := Manifest{
		Name:     props.Plugin.Name,
		Features: props.Assistant.Features,
	}

	v, err := versionValue(props.Plugin.Version)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: plugin.version: %w", PropertiesFile, err)
	}
	if v == nil {
		return Manifest{}, fmt.Errorf("%s: plugin.version is required", PropertiesFile)
	}
	m.Version = *v

	if m.Min, err = versionValue(props.Assistant.Version.Min); err != nil {
		return Manifest{}, fmt.Errorf("%s: assistant.version.min: %w", PropertiesFile, err)
	}
	if m.Max, err = versionValue(props.Assistant.Version.Max); err != nil {
		return Manifest{}, fmt.Errorf("%s: assistant.version.max: %w", PropertiesFile, err)
	}

	data, err := fs.ReadFile(fsys, KeywordsFile)
	if err != nil {
		return Manifest{}, fmt.Errorf("read %s: %w", KeywordsFile, err)
	}
	if err := json.Unmarshal(data, &m.Keywords); err != nil {
		return Manifest{}, fmt.Errorf("decode %s: %w", KeywordsFile, err)
	}

	return m, nil
}

// versionValue accepts either "1.2.0" or [1, 2, 0]. An absent value is nil.
func versionValue(raw any) (*Version, error) {
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		v, err := ParseVersion(x)
		if err != nil {
			return nil, err
		}
		return &v, nil
	case []any:
		ints := make([]int64, 0, len(x))
		for _, e := range x {
			n, ok := e.(int64)
			if !ok {
				return nil, fmt.Errorf("version component %v is not an integer", e)
			}
			ints = append(ints, n)
		}
		v, err := VersionFromInts(ints)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("unsupported version value %v", raw)
	}
}
