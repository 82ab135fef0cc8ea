package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <clip>",
	Short: "Play a recorded clip",
	Long: `Play a clip from the recordings directory (by name, e.g. audio_1700000000000.aac)
or any audio file by path, using the first available of the configured players.
Playback ends when the clip finishes or on Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(false)
		if err != nil {
			return err
		}
		defer closeService(svc)

		path, err := svc.ResolveClip(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		scr := svc.Screen()
		views, cancel := scr.Subscribe()
		defer cancel()

		if err := scr.PlayAudio(ctx, path); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Playing %s\n", filepath.Base(path))

		for {
			select {
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout())
				stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancelStop()
				return scr.StopAudio(stopCtx)
			case v, ok := <-views:
				if !ok {
					return nil
				}
				if v.IsPlaying {
					fmt.Fprintf(cmd.OutOrStdout(), "\r▶ %02d:%02d", v.PlaybackSeconds/60, v.PlaybackSeconds%60)
					continue
				}
				if v.Busy == "" && v.IsCurrent(path) {
					fmt.Fprintln(cmd.OutOrStdout())
					if v.LastError != "" {
						return fmt.Errorf("playback failed: %s", v.LastError)
					}
					return nil
				}
			}
		}
	},
}
