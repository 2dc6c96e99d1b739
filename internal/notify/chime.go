package notify

import (
	"context"
	"errors"
	"io/fs"
	log "log/slog"
	"os"
	"os/exec"
	"time"
)

// Player is satisfied by audio.Player.
type Player interface {
	Play(ctx context.Context, path string) (time.Duration, error)
}

// Chime plays a short sound when the assistant starts listening.
type Chime struct {
	player Player
	path   string
}

func NewChime(player Player, path string) *Chime {
	return &Chime{player: player, path: path}
}

// Ring plays the chime. A missing chime file is silently skipped.
func (c *Chime) Ring(ctx context.Context) error {
	if c == nil || c.path == "" {
		return nil
	}
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	_, err := c.player.Play(ctx, c.path)
	return err
}

// Desktop shows a desktop notification when notify-send is installed.
func Desktop(ctx context.Context, text string) {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		return
	}
	if err := exec.CommandContext(ctx, bin, "-a", "cutie", "-t", "2000", text).Run(); err != nil {
		log.Debug("Desktop notification failed", "err", err)
	}
}
