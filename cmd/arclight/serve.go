package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arclight-ai/arclight/pkg/cache"
	"github.com/arclight-ai/arclight/pkg/config"
	"github.com/arclight-ai/arclight/pkg/gateway"
	"github.com/arclight-ai/arclight/pkg/pricing"
	"github.com/arclight-ai/arclight/pkg/provider"
	"github.com/arclight-ai/arclight/pkg/ratelimit"
	"github.com/arclight-ai/arclight/pkg/secrets"
	"github.com/arclight-ai/arclight/pkg/server"
	"github.com/arclight-ai/arclight/pkg/usage"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LLM gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			recorder, err := usage.New(cfg.DBPath, cfg.Usage.RetentionDays)
			if err != nil {
				return fmt.Errorf("init usage log: %w", err)
			}
			defer func() { _ = recorder.Close() }()

			credStore, err := secrets.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init credential store: %w", err)
			}
			defer func() { _ = credStore.Close() }()

			var cacheStore *cache.Store
			if cfg.Cache.Enabled {
				cacheStore = cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)
			}

			var limiter *ratelimit.Limiter
			if cfg.RateLimit.Enabled {
				counters, err := ratelimit.NewSQLiteStore(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("init counter store: %w", err)
				}
				defer func() { _ = counters.Close() }()
				limiter = ratelimit.New(counters, ratelimit.Limits{
					PerMinute: cfg.RateLimit.PerMinute,
					PerHour:   cfg.RateLimit.PerHour,
					PerDay:    cfg.RateLimit.PerDay,
				})
			}

			resolver := secrets.NewResolver(
				secrets.NewConfigSource(cfg.OverrideFor),
				secrets.NewStoreSource(credStore, cfg.Security.EncryptionSecret, cfg.Security.AllowPlaintextCredentials),
			)

			registry := provider.NewRegistry(
				provider.NewOpenAI(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, cfg.Upstream.RequestsPerSecond),
				provider.Unimplemented{Tag: "anthropic"},
				provider.Unimplemented{Tag: "google"},
			)

			pricer := pricing.New(cfg.Pricing.Models,
				cfg.Pricing.DefaultPromptPerMTok, cfg.Pricing.DefaultCompletePerMTok)

			gw := gateway.New(gateway.Options{
				Cache:           cacheStore,
				Limiter:         limiter,
				Resolver:        resolver,
				Registry:        registry,
				Pricer:          pricer,
				Recorder:        recorder,
				UpstreamTimeout: cfg.Upstream.Timeout,
			})

			srv := server.New(cfg, gw, recorder)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting arclight gateway with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "arclight.yaml", "path to config file")
	return cmd
}
