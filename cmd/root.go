package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/voicememo/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "voicememo",
	Short: "Record, list and play back voice memos",
	Long: `VoiceMemo is a minimal voice recorder.

It records microphone audio into AAC clips, lists the recorded clips and
plays them back, from the command line, an interactive terminal screen
or a web interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			// logging is not configured yet
			setupLogging(verboseLevel, os.Stderr)
			return fmt.Errorf("failed to load config: %w", err)
		}

		// the terminal UI owns the screen, so it only logs to the file
		setupLogging(verboseLevel, logOutput(cmd.Name() != "ui"))
		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.Profile)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicememo.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated (overrides log.file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
}

var rotatedLog *lumberjack.Logger

// logOutput returns stderr and/or the rotated log file.
func logOutput(toStderr bool) io.Writer {
	var writers []io.Writer
	if toStderr {
		writers = append(writers, os.Stderr)
	}
	if w := logFileWriter(); w != nil {
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return io.Discard
	case 1:
		return writers[0]
	default:
		return io.MultiWriter(writers...)
	}
}

// logFileWriter returns the shared rotated log file, nil when disabled.
func logFileWriter() io.Writer {
	if rotatedLog != nil {
		return rotatedLog
	}

	path := logFile
	if path == "" && cfg != nil {
		path = cfg.Log.File
	}
	if path == "" {
		return nil
	}

	rotatedLog = &lumberjack.Logger{Filename: path}
	if cfg != nil {
		rotatedLog.MaxSize = cfg.Log.MaxSizeMB
		rotatedLog.MaxBackups = cfg.Log.MaxBackups
		rotatedLog.MaxAge = cfg.Log.MaxAgeDays
	}
	return rotatedLog
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, w io.Writer) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2:
		// Level 2 additionally forwards ffmpeg output, see ffmpegLogWriter
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(w, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// ffmpegLogWriter returns where ffmpeg output goes, nil to discard it.
func ffmpegLogWriter(interactive bool) io.Writer {
	if verboseLevel < 2 {
		return nil
	}
	return logOutput(!interactive)
}
