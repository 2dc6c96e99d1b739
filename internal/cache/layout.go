package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	rawExt     = ".wav"
	durableExt = ".flac"
)

// Layout is the on-disk arrangement of artifacts.
type Layout struct {
	Temp   string // single-use rare artifacts
	Assets string // pre-supplied effects live under Assets/effects
	Cache  string // generated artifacts live under Cache/responses/<type>
}

func DefaultLayout() Layout {
	return Layout{
		Temp:   "temp",
		Assets: "assets",
		Cache:  "cache",
	}
}

// Base returns the artifact path of req without extension.
// Rare requests get a fresh name on every call.
func (l Layout) Base(req Request) string {
	switch req.Tier() {
	case Rare:
		return filepath.Join(l.Temp, uuid.NewString())
	case Asset:
		return filepath.Join(l.Assets, "effects", FileStem(req.Service, req.Text))
	default:
		return filepath.Join(l.Cache, "responses", req.Dir(), FileStem(req.Service, req.Text))
	}
}

type State int

const (
	Miss State = iota
	Hit
	Stale
)

func (s State) String() string {
	switch s {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Lookup is the outcome of probing the cache for a request.
type Lookup struct {
	State State
	Base  string
}

func (l Lookup) Durable() string { return l.Base + durableExt }
func (l Lookup) Raw() string { return l.Base + rawExt }

// Lookup probes the filesystem. A Stale result means an uncompressed
// intermediate was left behind without its durable sibling.
func (l Layout) Lookup(req Request) (Lookup, error) {
	res := Lookup{Base: l.Base(req)}
	if req.Tier() == Rare {
		return res, nil
	}

	ok, err := exists(res.Durable())
	if err != nil {
		return res, err
	}
	if ok {
		res.State = Hit
		return res, nil
	}

	ok, err = exists(res.Raw())
	if err != nil {
		return res, err
	}
	if ok {
		res.State = Stale
	}

	return res, nil
}

func exists(path string) (bool, error) {
	st, err := os.Stat(path)
	if err == nil {
		return !st.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
