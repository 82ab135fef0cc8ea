package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultStartGrace  = 300 * time.Millisecond
	defaultStopTimeout = 5 * time.Second
	minClipBytes       = 1024
)

// FFmpegRecorder implements Recorder by running ffmpeg against the host's
// capture system.
type FFmpegRecorder struct {
	binary      string
	backend     BackendType
	device      string
	logWriter   io.Writer
	startGrace  time.Duration
	stopTimeout time.Duration

	mutex     sync.Mutex
	status    Status
	session   *SessionInfo
	ffmpegCmd *exec.Cmd
	exited    chan error
	stderrBuf *syncBuffer
}

// FFmpegOptions configures an FFmpegRecorder.
type FFmpegOptions struct {
	Binary      string // default "ffmpeg"
	Backend     BackendType
	Device      string
	StopTimeout time.Duration
	LogWriter   io.Writer // receives ffmpeg output, may be nil
}

// NewFFmpegRecorder creates a recorder; no process is started until Start.
func NewFFmpegRecorder(opts FFmpegOptions) *FFmpegRecorder {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Backend == "" || opts.Backend == BackendTypeAuto {
		opts.Backend = DetermineBackend(string(BackendTypeAuto))
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.LogWriter == nil {
		opts.LogWriter = io.Discard
	}

	return &FFmpegRecorder{
		binary:      opts.Binary,
		backend:     opts.Backend,
		device:      opts.Device,
		logWriter:   opts.LogWriter,
		startGrace:  defaultStartGrace,
		stopTimeout: opts.StopTimeout,
		status:      StatusStandby,
	}
}

// Start launches ffmpeg writing to path. It fails if ffmpeg cannot be
// started or exits during the start grace period (no device, bad args).
func (r *FFmpegRecorder) Start(ctx context.Context, path string, enc EncoderConfig) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ffmpegCmd != nil {
		return "", ErrAlreadyRecording
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("destination path is required")
	}
	if err := enc.Validate(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.status = StatusError
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	args := r.buildArgs(path, enc)
	slog.Info("Starting FFmpeg recording", "command", r.binary+" "+strings.Join(args, " "))

	cmd := exec.Command(r.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.status = StatusError
		return "", fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	stderrBuf := &syncBuffer{}
	var readers sync.WaitGroup
	readers.Add(2)
	go r.readOutput(&readers, stdout, nil, "stdout")
	go r.readOutput(&readers, stderr, stderrBuf, "stderr")

	exited := make(chan error, 1)
	go func() {
		// pipes must be drained before Wait closes them
		readers.Wait()
		exited <- cmd.Wait()
	}()

	select {
	case err := <-exited:
		r.status = StatusError
		if err == nil {
			err = fmt.Errorf("exited immediately")
		}
		return "", fmt.Errorf("FFmpeg failed to start recording: %w\nOutput: %s", err, stderrBuf.String())
	case <-time.After(r.startGrace):
	}

	r.ffmpegCmd = cmd
	r.exited = exited
	r.stderrBuf = stderrBuf
	r.status = StatusRecording
	r.session = &SessionInfo{StartTime: time.Now(), OutputFile: path}

	return path, nil
}

// Stop interrupts ffmpeg so it finalizes the file, then validates it.
func (r *FFmpegRecorder) Stop(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ffmpegCmd == nil {
		return ErrNotRecording
	}

	slog.Debug("Stopping FFmpeg recording...")

	if err := r.stopFFmpeg(ctx); err != nil {
		r.status = StatusError
		return fmt.Errorf("failed to stop FFmpeg: %w", err)
	}

	if err := r.validateOutputFile(); err != nil {
		r.status = StatusError
		r.session = nil
		return err
	}

	slog.Debug("FFmpeg recording completed successfully", "output", r.session.OutputFile)
	r.status = StatusStandby
	r.session = nil
	return nil
}

// GetStatus returns the current status and session info
func (r *FFmpegRecorder) GetStatus() (Status, *SessionInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.session == nil {
		return r.status, nil
	}
	session := *r.session
	return r.status, &session
}

// Cleanup kills a running ffmpeg process without finalizing the file.
func (r *FFmpegRecorder) Cleanup() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ffmpegCmd != nil && r.ffmpegCmd.Process != nil {
		r.ffmpegCmd.Process.Kill()
		<-r.exited
	}
	r.ffmpegCmd = nil
	r.session = nil
	r.status = StatusStandby

	slog.Debug("FFmpeg recorder cleaned up")
	return nil
}

func (r *FFmpegRecorder) buildArgs(path string, enc EncoderConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	args = append(args, r.backend.InputArgs(r.device)...)
	args = append(args,
		"-ac", strconv.Itoa(enc.Channels),
		"-ar", strconv.Itoa(enc.SampleRate),
		"-c:a", "aac",
	)
	if enc.Bitrate != "" {
		args = append(args, "-b:a", enc.Bitrate)
	}
	// raw ADTS stream: readable even if the process is killed
	args = append(args, "-f", "adts", "-y", path)
	return args
}

// readOutput forwards a pipe to the log writer, optionally buffering it
func (r *FFmpegRecorder) readOutput(wg *sync.WaitGroup, pipe io.ReadCloser, buffer *syncBuffer, label string) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if buffer != nil {
			buffer.WriteLine(line)
		}
		fmt.Fprintf(r.logWriter, "[ffmpeg %s] %s\n", label, line)
		slog.Debug("FFmpeg output", "stream", label, "line", line)
	}
}

// stopFFmpeg interrupts the process and waits for it, killing it when it
// does not exit within the stop timeout or ctx ends.
func (r *FFmpegRecorder) stopFFmpeg(ctx context.Context) error {
	cmd := r.ffmpegCmd
	defer func() { r.ffmpegCmd = nil }()

	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to FFmpeg process")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to FFmpeg, killing", "error", err)
			cmd.Process.Kill()
		}
	}

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case err := <-r.exited:
		if err == nil || exitedOnInterrupt(err) {
			return nil
		}
		slog.Debug("FFmpeg stderr", "output", r.stderrBuf.String())
		return fmt.Errorf("FFmpeg process failed: %w", err)

	case <-timer.C:
		slog.Warn("FFmpeg did not exit within timeout, force killing")
	case <-ctx.Done():
		slog.Warn("Stop cancelled, force killing FFmpeg", "error", ctx.Err())
	}

	cmd.Process.Kill()
	<-r.exited
	return nil
}

// exitedOnInterrupt reports whether err is ffmpeg's normal exit after SIGINT
func exitedOnInterrupt(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	// ffmpeg exits 255 after a graceful interrupt
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

// validateOutputFile validates the created output file
func (r *FFmpegRecorder) validateOutputFile() error {
	if r.session == nil {
		return fmt.Errorf("no session info available")
	}

	fileInfo, err := os.Stat(r.session.OutputFile)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", r.session.OutputFile)
	}

	if fileInfo.Size() < minClipBytes {
		return fmt.Errorf("recording failed: file too small (%d bytes)", fileInfo.Size())
	}

	slog.Debug("FFmpeg output file validated", "size", fileInfo.Size())
	return nil
}

type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sb.WriteString(line)
	b.sb.WriteByte('\n')
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}
