package main

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/famomatic/streamgate/client"
)

// mpvPlayer drives a detached mpv process. There is no IPC channel to the
// player, so position is approximated from wall time and renditions are
// left to mpv's own adaptive selection.
type mpvPlayer struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	generation int
	loadedAt   time.Time
	basePos    time.Duration
	paused     bool
	closed     bool
	events     chan client.Event
}

func newMPVPlayer() *mpvPlayer {
	return &mpvPlayer{events: make(chan client.Event, 4)}
}

func (p *mpvPlayer) Load(_ context.Context, url string, opts client.LoadOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("player closed")
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.generation++

	args := []string{fmt.Sprintf("--start=%d", int(opts.Position.Seconds()))}
	if opts.Paused {
		args = append(args, "--pause")
	}
	args = append(args, url)
	cmd := exec.Command("mpv", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}
	p.cmd = cmd
	p.loadedAt = time.Now()
	p.basePos = opts.Position
	p.paused = opts.Paused

	gen := p.generation
	go p.watch(cmd, gen)
	return nil
}

// watch reports process exit as a playback event unless a newer Load or
// Close superseded this process.
func (p *mpvPlayer) watch(cmd *exec.Cmd, gen int) {
	err := cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.generation {
		return
	}
	kind := client.EventEnded
	if err != nil {
		kind = client.EventFatal
	}
	select {
	case p.events <- client.Event{Kind: kind, Err: err}:
	default:
	}
}

func (p *mpvPlayer) Snapshot() client.PlaybackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.basePos
	if !p.paused && !p.loadedAt.IsZero() {
		pos += time.Since(p.loadedAt)
	}
	return client.PlaybackSnapshot{Position: pos, Paused: p.paused}
}

func (p *mpvPlayer) Renditions() []client.Rendition { return nil }

func (p *mpvPlayer) SetRendition(int) error { return nil }

func (p *mpvPlayer) Events() <-chan client.Event { return p.events }

func (p *mpvPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.generation++
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	close(p.events)
	return nil
}
