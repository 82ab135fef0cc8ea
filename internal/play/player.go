package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotPlaying = errors.New("nothing is playing")

// Session identifies one PlayURL call. Sessions start at 1 and are never
// reused by a player, so a completion can be matched to the playback that
// produced it even when the same file is played twice in a row.
type Session uint64

// Completion is delivered once when a playback ends on its own.
type Completion struct {
	Path    string
	Session Session
	Err     error // non-nil when the player exited with a failure
}

// Player plays audio files and reports when a playback finishes.
type Player interface {
	PlayURL(ctx context.Context, path string) (Session, error)
	Stop(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
	// OnFinished registers fn for natural completions; the returned func
	// removes the registration.
	OnFinished(fn func(Completion)) (unsubscribe func())
}

// ExecPlayer implements Player by running an external command line player.
type ExecPlayer struct {
	players []string
	prober  *Prober

	mu        sync.Mutex
	cmd       *exec.Cmd
	path      string
	session   Session
	stopped   bool
	exited    chan struct{}
	listeners map[int]func(Completion)
	nextID    int
}

// New creates a player trying players in order of preference. Entries may
// be names looked up in PATH or absolute paths.
func New(players []string, prober *Prober) *ExecPlayer {
	if len(players) == 0 {
		players = []string{"ffplay", "mpv", "vlc"}
	}
	if prober == nil {
		prober = NewProber("")
	}
	return &ExecPlayer{
		players:   players,
		prober:    prober,
		listeners: make(map[int]func(Completion)),
	}
}

// PlayURL starts playing path in the background and returns the session
// its completion will carry.
func (p *ExecPlayer) PlayURL(ctx context.Context, path string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("audio file not found: %s", path)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return 0, fmt.Errorf("no suitable audio player found: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return 0, fmt.Errorf("already playing %s", p.path)
	}

	cmd := exec.Command(player, playerArgs(player, path)...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("playback failed with %s: %w", player, err)
	}

	p.session++
	session := p.session
	slog.Debug("Playback started", "player", player, "file", path, "session", session)

	exited := make(chan struct{})
	p.cmd = cmd
	p.path = path
	p.stopped = false
	p.exited = exited

	go p.wait(cmd, path, session, exited)
	return session, nil
}

func (p *ExecPlayer) wait(cmd *exec.Cmd, path string, session Session, exited chan struct{}) {
	err := cmd.Wait()

	p.mu.Lock()
	natural := !p.stopped
	if p.cmd == cmd {
		p.cmd = nil
		p.path = ""
	}
	listeners := make([]func(Completion), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	close(exited)

	if !natural {
		slog.Debug("Playback stopped", "file", path)
		return
	}

	if err != nil {
		slog.Warn("Player exited with error", "file", path, "error", err)
	} else {
		slog.Debug("Playback completed", "file", path)
	}
	for _, fn := range listeners {
		fn(Completion{Path: path, Session: session, Err: err})
	}
}

// Stop ends the current playback. It is a no-op when nothing is playing.
func (p *ExecPlayer) Stop(ctx context.Context) error {
	p.mu.Lock()
	cmd, exited := p.cmd, p.exited
	if cmd == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop player: %w", err)
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop player: %w", ctx.Err())
	}
}

// Info probes the file currently playing.
func (p *ExecPlayer) Info(ctx context.Context) (Info, error) {
	p.mu.Lock()
	path := p.path
	p.mu.Unlock()

	if path == "" {
		return Info{}, ErrNotPlaying
	}
	return p.prober.Probe(ctx, path)
}

// OnFinished registers fn for natural completions.
func (p *ExecPlayer) OnFinished(fn func(Completion)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *ExecPlayer) findAudioPlayer() (string, error) {
	for _, player := range p.players {
		if path, err := exec.LookPath(player); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(p.players, ", "))
}

// playerArgs returns the arguments that make each player exit when the
// file ends, without opening a window.
func playerArgs(player, file string) []string {
	switch strings.TrimSuffix(filepath.Base(player), ".exe") {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", file}
	case "mpv":
		return []string{"--no-video", "--really-quiet", file}
	case "vlc", "cvlc":
		return []string{"--intf", "dummy", "--play-and-exit", file}
	default:
		return []string{file}
	}
}
