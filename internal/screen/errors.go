package screen

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when an operation is not allowed in the current
	// mode or while another operation is in flight.
	ErrBusy = errors.New("operation not allowed now")
	// ErrClosed is returned by operations on a closed screen.
	ErrClosed = errors.New("screen closed")
)

// Kind classifies collaborator failures.
type Kind int

const (
	ListFailure Kind = iota + 1
	StartRecordingFailure
	StopRecordingFailure
	PlaybackStartFailure
	PlaybackStopFailure
)

func (k Kind) String() string {
	switch k {
	case ListFailure:
		return "list failure"
	case StartRecordingFailure:
		return "start recording failure"
	case StopRecordingFailure:
		return "stop recording failure"
	case PlaybackStartFailure:
		return "playback start failure"
	case PlaybackStopFailure:
		return "playback stop failure"
	default:
		return "unknown failure"
	}
}

// OpError wraps a failure reported by the recorder, lister or player.
type OpError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// IsKind reports whether err is an OpError of kind k.
func IsKind(err error, k Kind) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.Kind == k
}

func busy(reason string) error {
	return fmt.Errorf("%w: %s", ErrBusy, reason)
}
