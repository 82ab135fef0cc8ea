package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the current state of the recorder
type Status string

const (
	StatusStandby   Status = "STANDBY"
	StatusRecording Status = "RECORDING"
	StatusError     Status = "ERROR"
)

// Encoding is the audio codec a recording is encoded with.
type Encoding string

// Source is the capture source a recording is taken from.
type Source string

const (
	EncodingAAC      Encoding = "aac"
	SourceMicrophone Source   = "microphone"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// EncoderConfig is the fixed capture configuration handed to Start.
type EncoderConfig struct {
	Encoding   Encoding
	Source     Source
	SampleRate int
	Channels   int
	Bitrate    string
}

// DefaultEncoderConfig is AAC from the microphone, mono, 44.1kHz.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Encoding:   EncodingAAC,
		Source:     SourceMicrophone,
		SampleRate: 44100,
		Channels:   1,
		Bitrate:    "128k",
	}
}

// Validate rejects configurations the recorder cannot produce.
func (c EncoderConfig) Validate() error {
	if !strings.EqualFold(string(c.Encoding), string(EncodingAAC)) {
		return fmt.Errorf("unsupported encoding %q", c.Encoding)
	}
	if !strings.EqualFold(string(c.Source), string(SourceMicrophone)) {
		return fmt.Errorf("unsupported source %q", c.Source)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	return nil
}

// SessionInfo contains information about the current recording session
type SessionInfo struct {
	StartTime  time.Time `json:"start_time"`
	OutputFile string    `json:"output_file"`
}

// Recorder captures microphone input into a file.
type Recorder interface {
	// Start begins capture into path and returns the path being written.
	Start(ctx context.Context, path string, enc EncoderConfig) (string, error)
	// Stop ends capture; the file given to Start is then complete.
	Stop(ctx context.Context) error
}
