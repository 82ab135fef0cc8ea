package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicememo/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the VoiceMemo web server to record and play clips via a web interface.
This allows you to control the recorder from your smartphone or any device on the same network.

The server will display the local network URL for easy access from mobile devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}

		svc, err := newService(false)
		if err != nil {
			return err
		}
		defer closeService(svc)

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if err := svc.Mount(ctx); err != nil {
			slog.Warn("Initial clip list failed", "error", err)
		}

		srv := server.New(svc.Screen(), svc.Library(), svc.Recorder(), port)
		slog.Info("VoiceMemo web server starting", "port", port, "directory", cfg.Storage.Directory)

		p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
		p.Go(func(ctx context.Context) error {
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		p.Go(func(ctx context.Context) error {
			return svc.WatchDirectory(ctx)
		})
		return p.Wait()
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (default from server.port)")
}
