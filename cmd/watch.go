package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"packrat/internal/daemon"
	"packrat/internal/engine"
	"packrat/internal/logger"
	"packrat/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the backup daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	eng := engine.New(cfg)
	sched := scheduler.New(eng.Submit)

	go func() {
		for snap := range eng.Events() {
			logger.Log.Debug("job event",
				zap.Uint("id", snap.JobID),
				zap.String("status", string(snap.Status)),
				zap.Float64("percent", snap.Percent),
				zap.String("detail", snap.Detail))
		}
	}()

	srv := daemon.NewServer(eng, sched, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("packrat daemon started",
		zap.Int("port", cfg.DaemonPort),
		zap.String("default_destination", cfg.DefaultDestination))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down", zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
