// Package screen implements the recorder screen: a single state machine
// coordinating microphone capture, the clip list and playback.
//
// All state is owned by one event loop goroutine. Operations call the
// recorder and player on the caller's goroutine and post their outcome to
// the loop, so elapsed-time counters and completion events can never race
// with a mode change.
package screen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/library"
	"github.com/audiolibrelab/voicememo/internal/play"
)

const (
	opRefresh        = "refresh"
	opStartRecording = "start_recording"
	opStopRecording  = "stop_recording"
	opPlayAudio      = "play_audio"
	opStopAudio      = "stop_audio"
)

// ClipSource lists clips and names new recordings. *library.Library
// implements it.
type ClipSource interface {
	Refresh(ctx context.Context) ([]library.Clip, error)
	NewClipPath(now time.Time) string
}

// Deps are the collaborators a Screen drives.
type Deps struct {
	Recorder audio.Recorder
	Library  ClipSource
	Player   play.Player
	Clock    Clock
}

// Options tune a Screen.
type Options struct {
	Encoder      audio.EncoderConfig
	TickInterval time.Duration
}

// Screen is the recorder screen state machine.
type Screen struct {
	recorder audio.Recorder
	library  ClipSource
	player   play.Player
	clock    Clock
	opts     Options

	events   chan func(*state)
	done     chan struct{}
	loopDone chan struct{}

	unsubscribe func()
	closeOnce   sync.Once

	lastMu sync.Mutex
	last   View

	// written by the loop on shutdown, read by Close after loopDone
	finalMode Mode
}

// New creates a screen and starts its event loop. The player completion
// subscription lives until Close.
func New(deps Deps, opts Options) *Screen {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Encoder == (audio.EncoderConfig{}) {
		opts.Encoder = audio.DefaultEncoderConfig()
	}

	s := &Screen{
		recorder: deps.Recorder,
		library:  deps.Library,
		player:   deps.Player,
		clock:    deps.Clock,
		opts:     opts,
		events:   make(chan func(*state)),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	st := &state{subs: make(map[int]chan View)}
	s.last = st.view()

	go s.run(st)
	s.unsubscribe = s.player.OnFinished(s.onPlaybackFinished)
	return s
}

func (s *Screen) run(st *state) {
	defer close(s.loopDone)

	for {
		var recordC, playC <-chan time.Time
		if st.recordTicker != nil {
			recordC = st.recordTicker.C()
		}
		if st.playTicker != nil {
			playC = st.playTicker.C()
		}

		select {
		case <-s.done:
			s.finalMode = st.mode
			st.releaseRecordTicker()
			st.releasePlayTicker()
			for id, ch := range st.subs {
				close(ch)
				delete(st.subs, id)
			}
			return
		case fn := <-s.events:
			fn(st)
		case <-recordC:
			if st.mode == ModeRecording {
				st.recordingSeconds++
				s.publish(st)
			}
		case <-playC:
			if st.mode == ModePlaying {
				st.playbackSeconds++
				s.publish(st)
			}
		}
	}
}

// do runs fn on the event loop and waits for it.
func (s *Screen) do(fn func(*state)) error {
	finished := make(chan struct{})
	select {
	case s.events <- func(st *state) {
		fn(st)
		close(finished)
	}:
	case <-s.done:
		return ErrClosed
	}
	<-finished
	return nil
}

// publish hands the current view to every subscriber, dropping any view
// a slow subscriber has not read yet.
func (s *Screen) publish(st *state) {
	v := st.view()

	s.lastMu.Lock()
	s.last = v
	s.lastMu.Unlock()

	for _, ch := range st.subs {
		// latest wins
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// View returns the current snapshot. After Close it returns the final one.
func (s *Screen) View() View {
	var v View
	if err := s.do(func(st *state) { v = st.view() }); err != nil {
		s.lastMu.Lock()
		defer s.lastMu.Unlock()
		return s.last
	}
	return v
}

// Subscribe returns a channel receiving the newest View after every change.
// Slow readers only miss intermediate snapshots. The channel is closed by
// the returned cancel func or by Close.
func (s *Screen) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	id := -1
	err := s.do(func(st *state) {
		id = st.nextSub
		st.nextSub++
		st.subs[id] = ch
		ch <- st.view()
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			_ = s.do(func(st *state) {
				if _, ok := st.subs[id]; ok {
					delete(st.subs, id)
					close(ch)
				}
			})
		})
	}
}

// Mount performs the initial clip list refresh.
func (s *Screen) Mount(ctx context.Context) error {
	return s.RefreshClipList(ctx)
}

// RefreshClipList replaces the clip list with the current directory
// contents. On failure the previous list is kept.
func (s *Screen) RefreshClipList(ctx context.Context) error {
	clips, err := s.library.Refresh(ctx)
	if err != nil {
		opErr := &OpError{Kind: ListFailure, Op: opRefresh, Err: err}
		slog.Error("Failed to refresh clip list", "error", err)
		if doErr := s.do(func(st *state) {
			st.lastError = opErr.Error()
			s.publish(st)
		}); doErr != nil {
			return doErr
		}
		return opErr
	}

	return s.do(func(st *state) {
		st.clips = clips
		s.publish(st)
	})
}

// StartRecording begins capturing into a new timestamped clip.
func (s *Screen) StartRecording(ctx context.Context) error {
	var (
		path   string
		reject error
	)
	err := s.do(func(st *state) {
		switch {
		case st.pending != "":
			reject = busy(st.pending + " in progress")
		case st.mode == ModeRecording:
			reject = busy("already recording")
		case st.mode == ModePlaying:
			reject = busy("cannot record while playing")
		default:
			path = s.library.NewClipPath(s.clock.Now())
			st.pending = opStartRecording
			s.publish(st)
		}
	})
	if err != nil {
		return err
	}
	if reject != nil {
		return reject
	}

	slog.Info("Starting recording", "file", path)
	_, startErr := s.recorder.Start(ctx, path, s.opts.Encoder)

	var opErr error
	if startErr != nil {
		opErr = &OpError{Kind: StartRecordingFailure, Op: opStartRecording, Err: startErr}
		slog.Error("Failed to start recording", "file", path, "error", startErr)
	}

	err = s.do(func(st *state) {
		st.pending = ""
		if opErr != nil {
			st.lastError = opErr.Error()
			s.publish(st)
			return
		}
		st.mode = ModeRecording
		st.recordingFile = path
		st.recordingSeconds = 0
		st.sessionID = uuid.NewString()
		st.lastError = ""
		st.releaseRecordTicker()
		st.recordTicker = s.clock.NewTicker(s.opts.TickInterval)
		slog.Info("Recording started", "file", path, "session", st.sessionID)
		s.publish(st)
	})
	if err != nil {
		if startErr == nil {
			// closed while starting; nobody is left to stop it
			_ = s.recorder.Stop(context.Background())
		}
		return err
	}
	return opErr
}

// StopRecording ends the current recording and refreshes the clip list.
// When the recorder fails to stop, the screen stays in recording mode.
func (s *Screen) StopRecording(ctx context.Context) error {
	var reject error
	err := s.do(func(st *state) {
		switch {
		case st.pending != "":
			reject = busy(st.pending + " in progress")
		case st.mode != ModeRecording:
			reject = busy("not recording")
		default:
			st.pending = opStopRecording
			s.publish(st)
		}
	})
	if err != nil {
		return err
	}
	if reject != nil {
		return reject
	}

	stopErr := s.recorder.Stop(ctx)
	if errors.Is(stopErr, audio.ErrNotRecording) {
		slog.Warn("Recorder was not recording, treating as stopped")
		stopErr = nil
	}

	var opErr error
	if stopErr != nil {
		opErr = &OpError{Kind: StopRecordingFailure, Op: opStopRecording, Err: stopErr}
		slog.Error("Failed to stop recording", "error", stopErr)
	}

	err = s.do(func(st *state) {
		st.pending = ""
		if opErr != nil {
			st.lastError = opErr.Error()
			s.publish(st)
			return
		}
		slog.Info("Recording stopped", "file", st.recordingFile, "seconds", st.recordingSeconds, "session", st.sessionID)
		st.mode = ModeIdle
		st.releaseRecordTicker()
		st.lastError = ""
		s.publish(st)
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	// the list failure is already recorded in the view
	if err := s.RefreshClipList(ctx); errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// PlayAudio plays path, switching away from any clip already playing.
// It is rejected while recording.
func (s *Screen) PlayAudio(ctx context.Context, path string) error {
	var (
		reject     error
		wasPlaying bool
	)
	err := s.do(func(st *state) {
		switch {
		case st.pending != "":
			reject = busy(st.pending + " in progress")
		case st.mode == ModeRecording:
			reject = busy("cannot play while recording")
		default:
			wasPlaying = st.mode == ModePlaying
			st.pending = opPlayAudio
			st.finishedEarly = make(map[play.Session]bool)
			s.publish(st)
		}
	})
	if err != nil {
		return err
	}
	if reject != nil {
		return reject
	}

	if wasPlaying {
		if stopErr := s.player.Stop(ctx); stopErr != nil {
			opErr := &OpError{Kind: PlaybackStopFailure, Op: opPlayAudio, Err: stopErr}
			slog.Error("Failed to stop current playback", "error", stopErr)
			if err := s.do(func(st *state) {
				st.pending = ""
				// the old clip may have ended while we tried to stop it
				if st.endedEarly(st.playSession) {
					st.mode = ModeIdle
					st.playSession = 0
					st.releasePlayTicker()
				}
				st.finishedEarly = nil
				st.lastError = opErr.Error()
				s.publish(st)
			}); err != nil {
				return err
			}
			return opErr
		}
	}

	session, playErr := s.player.PlayURL(ctx, path)
	if playErr != nil {
		opErr := &OpError{Kind: PlaybackStartFailure, Op: opPlayAudio, Err: playErr}
		slog.Error("Failed to start playback", "file", path, "error", playErr)
		if err := s.do(func(st *state) {
			st.pending = ""
			st.finishedEarly = nil
			if wasPlaying {
				st.mode = ModeIdle
				st.currentClip = ""
				st.playSession = 0
				st.releasePlayTicker()
			}
			st.lastError = opErr.Error()
			s.publish(st)
		}); err != nil {
			return err
		}
		return opErr
	}

	if info, err := s.player.Info(ctx); err == nil {
		slog.Debug("Playing clip", "file", path, "duration", info.Duration, "codec", info.Codec)
	}

	err = s.do(func(st *state) {
		st.pending = ""
		st.currentClip = path
		st.playbackSeconds = 0
		st.lastError = ""
		st.releasePlayTicker()
		ended := st.endedEarly(session)
		st.finishedEarly = nil
		if ended {
			st.mode = ModeIdle
			st.playSession = 0
			s.publish(st)
			return
		}
		st.mode = ModePlaying
		st.playSession = session
		st.sessionID = uuid.NewString()
		st.playTicker = s.clock.NewTicker(s.opts.TickInterval)
		slog.Info("Playback started", "file", path, "session", st.sessionID)
		s.publish(st)
	})
	if err != nil {
		_ = s.player.Stop(context.Background())
		return err
	}
	return nil
}

// StopAudio stops playback and unloads the current clip.
func (s *Screen) StopAudio(ctx context.Context) error {
	var reject error
	err := s.do(func(st *state) {
		if st.pending != "" {
			reject = busy(st.pending + " in progress")
			return
		}
		st.pending = opStopAudio
		s.publish(st)
	})
	if err != nil {
		return err
	}
	if reject != nil {
		return reject
	}

	if stopErr := s.player.Stop(ctx); stopErr != nil {
		slog.Error("Failed to stop playback", "error", stopErr)
		return s.fail(&OpError{Kind: PlaybackStopFailure, Op: opStopAudio, Err: stopErr})
	}

	return s.do(func(st *state) {
		st.pending = ""
		st.currentClip = ""
		st.playSession = 0
		if st.mode == ModePlaying {
			st.mode = ModeIdle
			st.releasePlayTicker()
			slog.Info("Playback stopped", "seconds", st.playbackSeconds, "session", st.sessionID)
		}
		st.lastError = ""
		s.publish(st)
	})
}

// fail clears the in-flight marker and records opErr.
func (s *Screen) fail(opErr *OpError) error {
	if err := s.do(func(st *state) {
		st.pending = ""
		st.lastError = opErr.Error()
		s.publish(st)
	}); err != nil {
		return err
	}
	return opErr
}

// onPlaybackFinished runs on the player's goroutine; the state change
// itself happens in the loop.
func (s *Screen) onPlaybackFinished(c play.Completion) {
	select {
	case s.events <- func(st *state) {
		if st.pending == opPlayAudio {
			// either the clip being replaced or the one just started;
			// the play commit tells them apart by session
			st.finishedEarly[c.Session] = true
			return
		}
		if st.mode != ModePlaying || c.Session != st.playSession {
			slog.Debug("Ignoring stale playback completion", "file", c.Path, "session", c.Session)
			return
		}
		st.mode = ModeIdle
		st.playSession = 0
		st.releasePlayTicker()
		if c.Err != nil {
			st.lastError = (&OpError{Kind: PlaybackStartFailure, Op: "playback", Err: c.Err}).Error()
		}
		slog.Info("Playback finished", "file", c.Path, "seconds", st.playbackSeconds, "session", st.sessionID)
		s.publish(st)
	}:
	case <-s.done:
	}
}

// Close tears the screen down: tickers and the player subscription are
// released and any active recording or playback is stopped. Further
// operations return ErrClosed; closing twice is a no-op.
func (s *Screen) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.unsubscribe()

		close(s.done)
		<-s.loopDone

		switch s.finalMode {
		case ModeRecording:
			if stopErr := s.recorder.Stop(ctx); stopErr != nil && !errors.Is(stopErr, audio.ErrNotRecording) {
				err = multierr.Append(err, &OpError{Kind: StopRecordingFailure, Op: "close", Err: stopErr})
			}
		case ModePlaying:
			if stopErr := s.player.Stop(ctx); stopErr != nil {
				err = multierr.Append(err, &OpError{Kind: PlaybackStopFailure, Op: "close", Err: stopErr})
			}
		}
		if err != nil {
			slog.Warn("Screen closed with errors", "error", err)
		}
	})
	return err
}
