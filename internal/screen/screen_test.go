package screen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/library"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	screen   *Screen
	recorder *fakeRecorder
	player   *fakePlayer
	library  *fakeLibrary
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		recorder: &fakeRecorder{},
		player:   newFakePlayer(),
		library:  &fakeLibrary{},
		clock:    newFakeClock(),
	}
	h.screen = New(Deps{
		Recorder: h.recorder,
		Library:  h.library,
		Player:   h.player,
		Clock:    h.clock,
	}, Options{})
	t.Cleanup(func() { _ = h.screen.Close(context.Background()) })
	return h
}

func TestStartRecording_CountsTicks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))

	v := h.screen.View()
	assert.True(t, v.IsRecording)
	assert.Equal(t, ModeRecording, v.Mode)
	assert.Equal(t, 0, v.RecordingSeconds)
	assert.Equal(t, "/memos/audio_1700000000000.aac", v.RecordingFile)
	assert.NotEmpty(t, v.SessionID)
	assert.Equal(t, []string{"/memos/audio_1700000000000.aac"}, h.recorder.starts)

	h.clock.lastTicker(t).advance(t, 3)
	assert.Equal(t, 3, h.screen.View().RecordingSeconds)
}

func TestStartRecording_ResetsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	h.clock.lastTicker(t).advance(t, 5)
	require.NoError(t, h.screen.StopRecording(ctx))
	assert.Equal(t, 5, h.screen.View().RecordingSeconds, "counter frozen after stop")

	require.NoError(t, h.screen.StartRecording(ctx))
	assert.Equal(t, 0, h.screen.View().RecordingSeconds)
	assert.Equal(t, 2, h.clock.tickerCount(), "each recording gets its own ticker")
}

func TestStartRecording_FailureLeavesStateIdle(t *testing.T) {
	h := newHarness(t)
	h.recorder.startErr = errDevice

	err := h.screen.StartRecording(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, StartRecordingFailure))
	assert.ErrorIs(t, err, errDevice)

	v := h.screen.View()
	assert.False(t, v.IsRecording)
	assert.Equal(t, 0, v.RecordingSeconds)
	assert.Empty(t, v.Busy)
	assert.Contains(t, v.LastError, "device unavailable")
	assert.Zero(t, h.clock.tickerCount(), "no ticker for a failed start")
}

func TestStartRecording_RejectedWhileRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	assert.ErrorIs(t, h.screen.StartRecording(ctx), ErrBusy)
	assert.Len(t, h.recorder.starts, 1)
}

func TestStartRecording_ClosedWhileStarting(t *testing.T) {
	h := newHarness(t)
	h.recorder.afterStart = func() {
		assert.NoError(t, h.screen.Close(context.Background()))
	}

	err := h.screen.StartRecording(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, h.recorder.isRecording(), "recorder started during close is stopped")
	assert.Equal(t, 1, h.recorder.stopCount())
}

func TestStopRecording_RefreshesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.library.set([]library.Clip{{Name: "audio_1.aac", Path: "/memos/audio_1.aac"}}, nil)

	require.NoError(t, h.screen.StartRecording(ctx))
	ticker := h.clock.lastTicker(t)
	require.NoError(t, h.screen.StopRecording(ctx))

	v := h.screen.View()
	assert.False(t, v.IsRecording)
	assert.Equal(t, ModeIdle, v.Mode)
	assert.Equal(t, 1, h.library.refreshCount())
	require.Len(t, v.Clips, 1)
	assert.Equal(t, "audio_1.aac", v.Clips[0].Name)
	assert.True(t, ticker.isStopped())
}

func TestStopRecording_NotRecording(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.screen.StopRecording(context.Background()), ErrBusy)
	assert.Zero(t, h.recorder.stopCount())
}

func TestStopRecording_FailureStaysRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	h.recorder.setStopErr(errDevice)

	err := h.screen.StopRecording(ctx)
	require.Error(t, err)
	assert.True(t, IsKind(err, StopRecordingFailure))

	v := h.screen.View()
	assert.True(t, v.IsRecording)
	assert.Empty(t, v.Busy)
	assert.Zero(t, h.library.refreshCount())

	// the counter keeps running and a retry succeeds
	h.clock.lastTicker(t).advance(t, 1)
	h.recorder.setStopErr(nil)
	require.NoError(t, h.screen.StopRecording(ctx))
	assert.False(t, h.screen.View().IsRecording)
	assert.Empty(t, h.screen.View().LastError)
}

func TestStopRecording_RecorderAlreadyStopped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	// the capture process died on its own
	h.recorder.mu.Lock()
	h.recorder.recording = false
	h.recorder.mu.Unlock()

	require.NoError(t, h.screen.StopRecording(ctx))
	assert.False(t, h.screen.View().IsRecording)
	assert.Equal(t, 1, h.library.refreshCount())
}

func TestPlayAudio_CompletionFreezesCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	v := h.screen.View()
	assert.True(t, v.IsPlaying)
	assert.Equal(t, "/memos/a.aac", v.CurrentClip)
	assert.Equal(t, 0, v.PlaybackSeconds)
	assert.False(t, v.RecordEnabled())

	ticker := h.clock.lastTicker(t)
	ticker.advance(t, 2)
	h.player.finish("/memos/a.aac")

	v = h.screen.View()
	assert.False(t, v.IsPlaying)
	assert.Equal(t, 2, v.PlaybackSeconds)
	assert.Equal(t, "/memos/a.aac", v.CurrentClip, "clip stays loaded after completion")
	assert.True(t, ticker.isStopped())
	assert.False(t, ticker.tryTick(), "no ticks consumed after completion")
	assert.Equal(t, 2, h.screen.View().PlaybackSeconds)
}

func TestPlayAudio_StaleCompletionIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	h.player.finish("/memos/other.aac")

	assert.True(t, h.screen.View().IsPlaying)
}

func TestPlayAudio_SwitchesClips(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	first := h.clock.lastTicker(t)
	first.advance(t, 4)

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/b.aac"))
	v := h.screen.View()
	assert.Equal(t, "/memos/b.aac", v.CurrentClip)
	assert.Equal(t, 0, v.PlaybackSeconds)
	assert.True(t, first.isStopped())
	assert.Equal(t, []string{"/memos/a.aac", "/memos/b.aac"}, h.player.played)
	assert.Equal(t, 1, h.player.stops)
}

func TestPlayAudio_RejectedWhileRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	assert.ErrorIs(t, h.screen.PlayAudio(ctx, "/memos/a.aac"), ErrBusy)
	assert.Empty(t, h.player.played)
	assert.False(t, h.screen.View().PlayEnabled())
}

func TestStartRecording_RejectedWhilePlaying(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	assert.ErrorIs(t, h.screen.StartRecording(ctx), ErrBusy)
	assert.Empty(t, h.recorder.starts)
}

func TestPlayAudio_ReplayIgnoresCompletionOfReplacedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))

	// the first playback ends on its own while it is being replaced
	h.player.setHooks(nil, func() { h.player.finish("/memos/a.aac") })
	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	h.player.setHooks(nil, nil)

	v := h.screen.View()
	assert.True(t, v.IsPlaying)
	assert.Equal(t, "/memos/a.aac", v.CurrentClip)
	assert.ErrorIs(t, h.screen.StartRecording(ctx), ErrBusy)
	assert.Empty(t, h.recorder.starts)

	// the replay's own completion still ends it
	h.player.finish("/memos/a.aac")
	assert.Equal(t, ModeIdle, h.screen.View().Mode)
}

func TestPlayAudio_CompletionBeforeStartCommits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.player.setHooks(func(path string) { h.player.finish(path) }, nil)
	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))

	v := h.screen.View()
	assert.False(t, v.IsPlaying)
	assert.Equal(t, ModeIdle, v.Mode)
	assert.Equal(t, "/memos/a.aac", v.CurrentClip)
	assert.Equal(t, 0, h.clock.tickerCount(), "no playback ticker for a finished clip")

	require.NoError(t, h.screen.StartRecording(ctx))
}

func TestPlayAudio_SingleCompletionSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, 1, h.player.listenerCount())
	for i := 0; i < 3; i++ {
		require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
		require.NoError(t, h.screen.StopAudio(ctx))
		require.NoError(t, h.screen.PlayAudio(ctx, "/memos/b.aac"))
		h.player.finish("/memos/b.aac")
		require.Equal(t, ModeIdle, h.screen.View().Mode)
	}
	assert.Equal(t, 1, h.player.listenerCount())
}

func TestPlayAudio_Failure(t *testing.T) {
	h := newHarness(t)
	h.player.playErr = errDevice

	err := h.screen.PlayAudio(context.Background(), "/memos/a.aac")
	require.Error(t, err)
	assert.True(t, IsKind(err, PlaybackStartFailure))

	v := h.screen.View()
	assert.False(t, v.IsPlaying)
	assert.Empty(t, v.CurrentClip)
	assert.NotEmpty(t, v.LastError)
}

func TestStopAudio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	ticker := h.clock.lastTicker(t)
	require.NoError(t, h.screen.StopAudio(ctx))

	v := h.screen.View()
	assert.False(t, v.IsPlaying)
	assert.Empty(t, v.CurrentClip)
	assert.True(t, ticker.isStopped())

	// completion after an explicit stop changes nothing
	h.player.finish("/memos/a.aac")
	assert.Equal(t, ModeIdle, h.screen.View().Mode)
}

func TestStopAudio_FailureKeepsPlaying(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	h.player.stopErr = errDevice

	err := h.screen.StopAudio(ctx)
	assert.True(t, IsKind(err, PlaybackStopFailure))
	v := h.screen.View()
	assert.True(t, v.IsPlaying)
	assert.Equal(t, "/memos/a.aac", v.CurrentClip)
}

func TestRefreshClipList_FiltersByExtension(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"a.aac", "b.txt", "c.aac"} {
		require.NoError(t, afero.WriteFile(fs, "/memos/"+name, []byte("x"), 0644))
	}
	lib := library.New(fs, &library.FSLister{Fs: fs}, library.Options{Directory: "/memos", Extension: ".aac"})

	s := New(Deps{Recorder: &fakeRecorder{}, Library: lib, Player: newFakePlayer(), Clock: newFakeClock()}, Options{})
	defer s.Close(context.Background())

	require.NoError(t, s.Mount(context.Background()))

	var names []string
	for _, clip := range s.View().Clips {
		names = append(names, clip.Name)
	}
	assert.Equal(t, []string{"a.aac", "c.aac"}, names)
}

func TestRefreshClipList_FailureKeepsPreviousClips(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.library.set([]library.Clip{{Name: "a.aac"}}, nil)
	require.NoError(t, h.screen.Mount(ctx))

	h.library.set(nil, errDevice)
	err := h.screen.RefreshClipList(ctx)
	assert.True(t, IsKind(err, ListFailure))

	v := h.screen.View()
	require.Len(t, v.Clips, 1)
	assert.Contains(t, v.LastError, "list failure")
}

func TestClose_WhileRecordingStopsCounting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	ticker := h.clock.lastTicker(t)
	ticker.advance(t, 2)

	require.NoError(t, h.screen.Close(ctx))

	assert.True(t, ticker.isStopped())
	assert.False(t, ticker.tryTick())
	assert.Equal(t, 2, h.screen.View().RecordingSeconds)
	assert.Equal(t, 1, h.recorder.stopCount(), "active recording stopped on close")
	assert.Zero(t, h.player.listenerCount())
}

func TestClose_WhilePlayingStopsCounting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.PlayAudio(ctx, "/memos/a.aac"))
	ticker := h.clock.lastTicker(t)
	ticker.advance(t, 1)

	require.NoError(t, h.screen.Close(ctx))
	assert.False(t, ticker.tryTick())
	assert.Equal(t, 1, h.screen.View().PlaybackSeconds)
	assert.Equal(t, 1, h.player.stops)

	// late completion from the player goroutine is dropped
	h.player.finish("/memos/a.aac")
	assert.True(t, h.screen.View().IsPlaying)
}

func TestClose_ReportsDeviceErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.screen.StartRecording(ctx))
	h.recorder.setStopErr(errDevice)

	err := h.screen.Close(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDevice))
	assert.NoError(t, h.screen.Close(ctx), "second close is a no-op")
}

func TestOperationsAfterClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.screen.Close(ctx))

	assert.ErrorIs(t, h.screen.StartRecording(ctx), ErrClosed)
	assert.ErrorIs(t, h.screen.StopRecording(ctx), ErrClosed)
	assert.ErrorIs(t, h.screen.PlayAudio(ctx, "/memos/a.aac"), ErrClosed)
	assert.ErrorIs(t, h.screen.StopAudio(ctx), ErrClosed)
	assert.ErrorIs(t, h.screen.RefreshClipList(ctx), ErrClosed)
}

func TestSubscribe_ReceivesLatestView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	views, cancel := h.screen.Subscribe()
	defer cancel()

	initial := <-views
	assert.Equal(t, ModeIdle, initial.Mode)

	require.NoError(t, h.screen.StartRecording(ctx))
	h.clock.lastTicker(t).advance(t, 3)

	// intermediate snapshots may be dropped; the newest is always delivered
	var latest View
	deadline := time.After(2 * time.Second)
	for latest.RecordingSeconds != 3 {
		select {
		case latest = <-views:
		case <-deadline:
			t.Fatalf("latest view not delivered, last %+v", latest)
		}
	}
	assert.True(t, latest.IsRecording)
}

func TestSubscribe_ClosedOnClose(t *testing.T) {
	h := newHarness(t)
	views, cancel := h.screen.Subscribe()
	<-views

	require.NoError(t, h.screen.Close(context.Background()))
	_, ok := <-views
	assert.False(t, ok)
	cancel()
}

func TestOpError_Format(t *testing.T) {
	err := &OpError{Kind: StopRecordingFailure, Op: opStopRecording, Err: audio.ErrNotRecording}
	assert.Equal(t, "stop_recording: stop recording failure: no recording in progress", err.Error())
	assert.ErrorIs(t, err, audio.ErrNotRecording)
}
