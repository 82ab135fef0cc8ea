package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/library"
	"github.com/audiolibrelab/voicememo/internal/play"
)

type fakeRecorder struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	starts    []string
	stops     int
	recording bool

	// runs outside the lock once a start succeeded
	afterStart func()
}

func (r *fakeRecorder) Start(_ context.Context, path string, enc audio.EncoderConfig) (string, error) {
	r.mu.Lock()
	if err := enc.Validate(); err != nil {
		r.mu.Unlock()
		return "", err
	}
	if r.startErr != nil {
		r.mu.Unlock()
		return "", r.startErr
	}
	r.starts = append(r.starts, path)
	r.recording = true
	hook := r.afterStart
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return path, nil
}

func (r *fakeRecorder) isRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *fakeRecorder) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.stopErr != nil {
		return r.stopErr
	}
	if !r.recording {
		return audio.ErrNotRecording
	}
	r.recording = false
	return nil
}

func (r *fakeRecorder) setStopErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopErr = err
}

func (r *fakeRecorder) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

type fakePlayer struct {
	mu        sync.Mutex
	playErr   error
	stopErr   error
	current   string
	session   play.Session
	sessions  map[string]play.Session // last session per path
	played    []string
	stops     int
	listeners map[int]func(play.Completion)
	nextID    int

	// run outside the lock, after the call's own work
	afterPlay  func(path string)
	duringStop func()
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		sessions:  make(map[string]play.Session),
		listeners: make(map[int]func(play.Completion)),
	}
}

func (p *fakePlayer) PlayURL(_ context.Context, path string) (play.Session, error) {
	p.mu.Lock()
	if p.playErr != nil {
		p.mu.Unlock()
		return 0, p.playErr
	}
	if p.current != "" {
		p.mu.Unlock()
		return 0, fmt.Errorf("already playing %s", p.current)
	}
	p.session++
	session := p.session
	p.current = path
	p.sessions[path] = session
	p.played = append(p.played, path)
	hook := p.afterPlay
	p.mu.Unlock()

	if hook != nil {
		hook(path)
	}
	return session, nil
}

func (p *fakePlayer) Stop(context.Context) error {
	p.mu.Lock()
	hook := p.duringStop
	p.mu.Unlock()
	if hook != nil {
		hook()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.stopErr != nil {
		return p.stopErr
	}
	p.current = ""
	return nil
}

func (p *fakePlayer) Info(context.Context) (play.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return play.Info{}, play.ErrNotPlaying
	}
	return play.Info{Path: p.current, Duration: 3 * time.Second, Codec: "aac"}, nil
}

func (p *fakePlayer) OnFinished(fn func(play.Completion)) func() {
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

// finish simulates the latest playback of path ending on its own.
func (p *fakePlayer) finish(path string) {
	p.mu.Lock()
	if p.current == path {
		p.current = ""
	}
	session := p.sessions[path]
	listeners := make([]func(play.Completion), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(play.Completion{Path: path, Session: session})
	}
}

func (p *fakePlayer) setHooks(afterPlay func(string), duringStop func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.afterPlay = afterPlay
	p.duringStop = duringStop
}

func (p *fakePlayer) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

type fakeLibrary struct {
	mu        sync.Mutex
	clips     []library.Clip
	err       error
	refreshes int
}

func (l *fakeLibrary) Refresh(context.Context) ([]library.Clip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	if l.err != nil {
		return nil, l.err
	}
	return append([]library.Clip(nil), l.clips...), nil
}

func (l *fakeLibrary) NewClipPath(now time.Time) string {
	return fmt.Sprintf("/memos/audio_%d.aac", now.UnixMilli())
}

func (l *fakeLibrary) set(clips []library.Clip, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clips = clips
	l.err = err
}

func (l *fakeLibrary) refreshCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshes
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1700000000000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) lastTicker(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		t.Fatal("no ticker was created")
	}
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type fakeTicker struct {
	c chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// advance delivers n ticks, failing if the screen stops consuming them.
func (t *fakeTicker) advance(tb testing.TB, n int) {
	tb.Helper()
	for i := 0; i < n; i++ {
		select {
		case t.c <- time.Time{}:
		case <-time.After(2 * time.Second):
			tb.Fatalf("tick %d not consumed", i+1)
		}
	}
}

// tryTick reports whether a single tick was consumed within a short window.
func (t *fakeTicker) tryTick() bool {
	select {
	case t.c <- time.Time{}:
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

var errDevice = errors.New("device unavailable")
