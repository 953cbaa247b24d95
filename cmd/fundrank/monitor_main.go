package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	fundhttp "github.com/sawpanic/fundrank/internal/interfaces/http"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the monitoring and ranking HTTP server",
		Long:  "Serves /health, /metrics, /categories and /rank/{category} until interrupted",
		RunE:  runMonitor,
	}
	defaults := fundhttp.DefaultServerConfig()
	cmd.Flags().Int("port", defaults.Port, "HTTP server port (env FUNDRANK_HTTP_PORT)")
	cmd.Flags().String("host", defaults.Host, "HTTP server host")
	return cmd
}

// runMonitor starts the monitoring HTTP server
func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := fundhttp.Deps{
		Ranker:  a.engine,
		Metrics: a.metrics,
		Version: version,
	}
	if a.clients != nil {
		deps.Health = a.clients
	}
	if wl, err := loadWeights(cmd); err != nil {
		log.Warn().Err(err).Msg("No weights config, /rank requires explicit weights")
	} else {
		deps.Weights = wl
	}

	cfg := fundhttp.DefaultServerConfig()
	cfg.Port, _ = cmd.Flags().GetInt("port")
	cfg.Host, _ = cmd.Flags().GetString("host")

	server, err := fundhttp.NewServer(cfg, deps)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Info().Str("app", appName).Str("addr", server.GetAddress()).Msg("Monitoring server running")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
