// Package service assembles the recorder screen and its collaborators from
// the resolved configuration.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/audiolibrelab/voicememo/internal/audio"
	"github.com/audiolibrelab/voicememo/internal/config"
	"github.com/audiolibrelab/voicememo/internal/library"
	"github.com/audiolibrelab/voicememo/internal/play"
	"github.com/audiolibrelab/voicememo/internal/screen"
)

// Service owns the long lived components of one voicememo process.
type Service struct {
	cfg      *config.Config
	fs       afero.Fs
	library  *library.Library
	recorder *audio.FFmpegRecorder
	player   *play.ExecPlayer
	screen   *screen.Screen
}

// New builds the service on the OS filesystem. logWriter receives ffmpeg
// output and may be nil.
func New(cfg *config.Config, logWriter io.Writer) (*Service, error) {
	return NewWithFs(cfg, afero.NewOsFs(), logWriter)
}

// NewWithFs builds the service on fs and creates the recordings directory.
func NewWithFs(cfg *config.Config, fs afero.Fs, logWriter io.Writer) (*Service, error) {
	prober := play.NewProber(cfg.Player.ProbeBinary)

	libOpts := library.Options{
		Directory:    cfg.Storage.Directory,
		Extension:    cfg.Storage.Extension,
		ProbeWorkers: cfg.Storage.ProbeWorkers,
	}
	if cfg.Storage.ProbeDurations {
		libOpts.Prober = prober
	}
	lib := library.New(fs, &library.FSLister{Fs: fs}, libOpts)
	if err := lib.EnsureDir(); err != nil {
		return nil, err
	}

	recorder := audio.NewFFmpegRecorder(audio.FFmpegOptions{
		Binary:      cfg.Recorder.Binary,
		Backend:     audio.DetermineBackend(cfg.Recorder.Backend),
		Device:      cfg.Recorder.Device,
		StopTimeout: cfg.Recorder.StopTimeout,
		LogWriter:   logWriter,
	})
	player := play.New(cfg.Player.Players, prober)

	scr := screen.New(screen.Deps{
		Recorder: recorder,
		Library:  lib,
		Player:   player,
	}, screen.Options{
		Encoder:      EncoderConfig(cfg),
		TickInterval: cfg.Screen.TickInterval,
	})

	slog.Debug("Service created",
		"directory", cfg.Storage.Directory,
		"backend", cfg.Recorder.Backend,
		"profile", cfg.Profile)

	return &Service{
		cfg:      cfg,
		fs:       fs,
		library:  lib,
		recorder: recorder,
		player:   player,
		screen:   scr,
	}, nil
}

// EncoderConfig converts the recorder section into the capture settings.
func EncoderConfig(cfg *config.Config) audio.EncoderConfig {
	return audio.EncoderConfig{
		Encoding:   audio.Encoding(strings.ToLower(cfg.Recorder.Encoding)),
		Source:     audio.Source(strings.ToLower(cfg.Recorder.Source)),
		SampleRate: cfg.Recorder.SampleRate,
		Channels:   cfg.Recorder.Channels,
		Bitrate:    cfg.Recorder.Bitrate,
	}
}

// Screen returns the recorder screen every surface drives.
func (s *Service) Screen() *screen.Screen { return s.screen }

// Library returns the clip library of the recordings directory.
func (s *Service) Library() *library.Library { return s.library }

// Recorder returns the ffmpeg recorder, for status reporting only; starting
// and stopping goes through the screen.
func (s *Service) Recorder() *audio.FFmpegRecorder { return s.recorder }

// Mount loads the initial clip list into the screen.
func (s *Service) Mount(ctx context.Context) error {
	return s.screen.Mount(ctx)
}

// ListClips lists the recordings directory without touching screen state.
func (s *Service) ListClips(ctx context.Context) ([]library.Clip, error) {
	return s.library.Refresh(ctx)
}

// ResolveClip accepts a clip name from the recordings directory or a path
// to an existing file.
func (s *Service) ResolveClip(arg string) (string, error) {
	if path, err := s.library.Resolve(arg); err == nil {
		return path, nil
	}
	info, err := s.fs.Stat(arg)
	if err != nil {
		return "", fmt.Errorf("clip not found: %s", arg)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", arg)
	}
	return arg, nil
}

// WatchDirectory refreshes the screen whenever clips change on disk. It
// returns immediately when watching is disabled and otherwise blocks until
// ctx is done.
func (s *Service) WatchDirectory(ctx context.Context) error {
	if !s.cfg.Screen.WatchDirectory {
		return nil
	}
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return fmt.Errorf("directory watching requires the OS filesystem")
	}

	slog.Info("Watching recordings directory", "directory", s.library.Directory())
	return s.library.Watch(ctx, func() {
		if err := s.screen.RefreshClipList(ctx); err != nil {
			slog.Warn("Refresh after directory change failed", "error", err)
		}
	})
}

// GetLastError returns the last error recorded by the screen
func (s *Service) GetLastError() string {
	return s.screen.View().LastError
}

// Close tears down the screen, then makes sure no capture process survives.
func (s *Service) Close(ctx context.Context) error {
	err := s.screen.Close(ctx)
	err = multierr.Append(err, s.recorder.Cleanup())
	if err != nil {
		slog.Warn("Service closed with errors", "error", err)
	}
	return err
}
