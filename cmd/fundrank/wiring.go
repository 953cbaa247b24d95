package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/fundrank/internal/cache"
	"github.com/sawpanic/fundrank/internal/config"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/net/client"
	"github.com/sawpanic/fundrank/internal/pipeline"
	"github.com/sawpanic/fundrank/internal/providers"
)

// app holds the collaborators shared by the subcommands
type app struct {
	engine  *pipeline.Engine
	clients *client.Manager // nil in offline mode
	metrics *metrics.Registry
	cache   cache.Cache
}

// newApp wires providers, transport and the pipeline engine from the
// persistent flags. Extra engine options are appended last.
func newApp(ctx context.Context, cmd *cobra.Command, opts ...pipeline.Option) (*app, error) {
	a := &app{metrics: metrics.NewRegistry()}
	engineOpts := []pipeline.Option{pipeline.WithMetrics(a.metrics)}

	offline, _ := cmd.Flags().GetString("offline")
	var reg *providers.Registry
	if offline != "" {
		var err error
		reg, err = providers.LoadStaticDir(offline)
		if err != nil {
			return nil, fmt.Errorf("failed to load offline providers: %w", err)
		}
		log.Info().Str("dir", offline).Strs("providers", reg.Names()).Msg("Using offline providers")
	} else {
		path, _ := cmd.Flags().GetString("providers")
		if path == "" {
			path = config.GetDefaultProvidersPath()
		}
		cfg, err := config.LoadProvidersConfig(path)
		if err != nil {
			return nil, err
		}

		a.cache = cache.New(ctx, cache.Options{
			RedisAddr:  cfg.Cache.RedisAddr,
			RedisDB:    cfg.Cache.RedisDB,
			Prefix:     "fundrank:",
			MaxEntries: cfg.Cache.MaxEntries,
		})
		a.clients = client.NewManagerFromConfig(cfg, a.cache, a.metrics)
		reg, err = providers.NewRegistryFromConfig(cfg, a.clients)
		if err != nil {
			return nil, err
		}
		if cfg.Global.MaxConcurrency > 0 {
			engineOpts = append(engineOpts, pipeline.WithMaxConcurrency(cfg.Global.MaxConcurrency))
		}
		log.Info().Str("config", path).Strs("providers", reg.Names()).Msg("Providers configured")
	}

	a.engine = pipeline.NewEngine(reg, append(engineOpts, opts...)...)
	return a, nil
}

// Close releases the cache connection
func (a *app) Close() {
	if c, ok := a.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close cache")
		}
	}
}

// loadWeights reads the weights config named by --weights-config
func loadWeights(cmd *cobra.Command) (*config.WeightsLoader, error) {
	path, _ := cmd.Flags().GetString("weights-config")
	if path == "" {
		path = config.GetDefaultWeightsPath()
	}
	wl := config.NewWeightsLoader()
	if err := wl.LoadFromFile(path); err != nil {
		return nil, err
	}
	return wl, nil
}
