package screen

import (
	"fmt"

	"github.com/audiolibrelab/voicememo/internal/library"
	"github.com/audiolibrelab/voicememo/internal/play"
)

// Mode is the activity the screen is engaged in. Recording and playing are
// mutually exclusive.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRecording
	ModePlaying
)

func (m Mode) String() string {
	switch m {
	case ModeRecording:
		return "recording"
	case ModePlaying:
		return "playing"
	default:
		return "idle"
	}
}

// MarshalText encodes the mode by name, so JSON views read "playing"
// rather than 2.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses the names written by MarshalText.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*m = ModeIdle
	case "recording":
		*m = ModeRecording
	case "playing":
		*m = ModePlaying
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// View is an immutable snapshot of everything the screen shows.
type View struct {
	Mode             Mode           `json:"mode"`
	IsRecording      bool           `json:"is_recording"`
	IsPlaying        bool           `json:"is_playing"`
	Clips            []library.Clip `json:"clips"`
	CurrentClip      string         `json:"current_clip,omitempty"`
	RecordingFile    string         `json:"recording_file,omitempty"`
	RecordingSeconds int            `json:"recording_seconds"`
	PlaybackSeconds  int            `json:"playback_seconds"`
	SessionID        string         `json:"session_id,omitempty"`
	Busy             string         `json:"busy,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
}

// RecordEnabled reports whether the record/stop toggle accepts input.
func (v View) RecordEnabled() bool {
	return v.Busy == "" && !v.IsPlaying
}

// PlayEnabled reports whether play controls accept input.
func (v View) PlayEnabled() bool {
	return v.Busy == "" && !v.IsRecording
}

// IsCurrent reports whether path is the loaded clip.
func (v View) IsCurrent(path string) bool {
	return v.CurrentClip != "" && v.CurrentClip == path
}

type state struct {
	mode             Mode
	clips            []library.Clip
	currentClip      string
	recordingFile    string
	recordingSeconds int
	playbackSeconds  int
	sessionID        string
	lastError        string

	// in-flight operation; "" when none
	pending string

	// player session shown as playing, 0 when none
	playSession play.Session
	// completions that arrived while a play was pending
	finishedEarly map[play.Session]bool

	recordTicker Ticker
	playTicker   Ticker

	subs    map[int]chan View
	nextSub int
}

func (st *state) view() View {
	clips := make([]library.Clip, len(st.clips))
	copy(clips, st.clips)
	return View{
		Mode:             st.mode,
		IsRecording:      st.mode == ModeRecording,
		IsPlaying:        st.mode == ModePlaying,
		Clips:            clips,
		CurrentClip:      st.currentClip,
		RecordingFile:    st.recordingFile,
		RecordingSeconds: st.recordingSeconds,
		PlaybackSeconds:  st.playbackSeconds,
		SessionID:        st.sessionID,
		Busy:             st.pending,
		LastError:        st.lastError,
	}
}

func (st *state) releaseRecordTicker() {
	if st.recordTicker != nil {
		st.recordTicker.Stop()
		st.recordTicker = nil
	}
}

// endedEarly reports whether session finished before its play committed.
func (st *state) endedEarly(session play.Session) bool {
	return session != 0 && st.finishedEarly[session]
}

func (st *state) releasePlayTicker() {
	if st.playTicker != nil {
		st.playTicker.Stop()
		st.playTicker = nil
	}
}
