package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rocketDuck/folivora/internal/app"
	"github.com/rocketDuck/folivora/internal/logger"
)

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
	defaultShutdownTimeout  = 30 * time.Second
)

// serveCommand runs the full service: cron-driven changelog syncs, the
// queue worker pool and the admin HTTP server.
func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler, workers and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(app.Options{WithQueue: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Scheduler.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}

			errChan := make(chan error, errorChannelBufferSize)
			go func() {
				if serveErr := a.Server.Start(); serveErr != nil {
					errChan <- serveErr
				}
			}()
			a.Log.Info("Service started",
				logger.String("addr", a.Config.Server.Addr),
				logger.String("schedule", a.Config.Scheduler.SyncSchedule),
				logger.Int("workers", a.Config.Scheduler.Workers))

			sigChan := make(chan os.Signal, signalChannelBufferSize)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigChan:
				a.Log.Info("Received signal, shutting down", logger.String("signal", sig.String()))
			case err := <-errChan:
				a.Log.Error("Server error", logger.Error(err))
				a.Scheduler.Stop()
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()

			if err := a.Server.Shutdown(shutdownCtx); err != nil {
				a.Log.Error("Server shutdown failed", logger.Error(err))
			}
			a.Scheduler.Stop()
			a.Log.Info("Shutdown complete")
			return nil
		},
	}
}
