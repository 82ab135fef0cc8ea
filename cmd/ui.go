package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicememo/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive recorder screen",
	Long: `Open the recorder screen in the terminal: record with space, play the
selected clip with enter, play or stop the loaded clip with s and quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(true)
		if err != nil {
			return err
		}
		defer closeService(svc)

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if err := svc.Mount(ctx); err != nil {
			// the screen shows the failure; the list can be refreshed later
			slog.Warn("Initial clip list failed", "error", err)
		}

		p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
		p.Go(func(ctx context.Context) error {
			return svc.WatchDirectory(ctx)
		})
		p.Go(func(ctx context.Context) error {
			if err := tui.Run(ctx, svc.Screen()); err != nil {
				return fmt.Errorf("terminal UI failed: %w", err)
			}
			// quitting the UI ends the watcher too
			stop()
			return nil
		})
		err = p.Wait()

		// the terminal was busy while the UI ran
		if msg := svc.GetLastError(); msg != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Last error: %s\n", msg)
		}
		return err
	},
}
