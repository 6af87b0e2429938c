// Package sound plays audio cues by spawning an external MP3 player
// (mpg123 by default). Playback is fire-and-forget: the show never waits
// on audio and never fails because of it.
package sound

import (
	"log/slog"
	"os/exec"
	"sync"
)

// Player plays a single cue file.
type Player struct {
	binary string
	path   string
	log    *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewPlayer creates a player for one cue file. binary is the external
// player executable; empty uses mpg123.
func NewPlayer(binary, path string, log *slog.Logger) *Player {
	if binary == "" {
		binary = "mpg123"
	}
	return &Player{binary: binary, path: path, log: log}
}

// Play starts the cue. A cue already playing is restarted from the top.
// Start failures are logged, never returned: a dead speaker must not stop
// the pump.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	cmd := exec.Command(p.binary, "-q", p.path)
	if err := cmd.Start(); err != nil {
		p.log.Error("cue playback failed", "file", p.path, "error", err)
		return
	}
	p.cmd = cmd
	// Reap the process when the cue finishes on its own.
	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
	}()
}

// Stop kills the cue if it is still playing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil {
		p.log.Debug("cue stop", "file", p.path, "error", err)
	}
	p.cmd = nil
}
