package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a new voice memo from the microphone",
	Long: `Record microphone audio into a new timestamped AAC clip in the
recordings directory. Recording stops on Enter, Ctrl+C or after --duration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")

		svc, err := newService(false)
		if err != nil {
			return err
		}
		defer closeService(svc)

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		scr := svc.Screen()
		views, cancel := scr.Subscribe()
		defer cancel()

		if err := scr.StartRecording(ctx); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		file := scr.View().RecordingFile
		slog.Info("Recording - press Enter or Ctrl+C to stop", "file", file)

		enter := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()

		var timeout <-chan time.Time
		if duration > 0 {
			timeout = time.After(duration)
		}

		last := -1
	wait:
		for {
			select {
			case <-ctx.Done():
				break wait
			case <-enter:
				break wait
			case <-timeout:
				break wait
			case v, ok := <-views:
				if !ok {
					break wait
				}
				if v.IsRecording && v.RecordingSeconds != last {
					last = v.RecordingSeconds
					fmt.Fprintf(cmd.OutOrStdout(), "\r● REC %02d:%02d", last/60, last%60)
				}
			}
		}
		fmt.Fprintln(cmd.OutOrStdout())

		// the signal context may already be cancelled
		stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelStop()
		if err := scr.StopRecording(stopCtx); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%ds)\n", filepath.Base(file), scr.View().RecordingSeconds)
		return nil
	},
}

func init() {
	recordCmd.Flags().DurationP("duration", "d", 0, "stop automatically after this long (0 = until stopped)")
}
