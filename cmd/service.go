package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/voicememo/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newService(interactive bool) (*service.Service, error) {
	return service.New(cfg, ffmpegLogWriter(interactive))
}

// closeService stops whatever the screen still has running.
func closeService(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		slog.Error("Shutdown incomplete", "error", err)
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
