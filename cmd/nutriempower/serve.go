package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nutriempower/nutriempower/pkg/audit"
	"github.com/nutriempower/nutriempower/pkg/cache/memory"
	"github.com/nutriempower/nutriempower/pkg/chat"
	"github.com/nutriempower/nutriempower/pkg/dataset"
	"github.com/nutriempower/nutriempower/pkg/limiter"
	"github.com/nutriempower/nutriempower/pkg/llm"
	"github.com/nutriempower/nutriempower/pkg/logging"
	"github.com/nutriempower/nutriempower/pkg/metrics"
	"github.com/nutriempower/nutriempower/pkg/retrieval"
	"github.com/nutriempower/nutriempower/pkg/server"
	"github.com/nutriempower/nutriempower/pkg/tracker"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			log := logging.New(cfg.Log)
			m := metrics.New()

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			client, err := llm.New(cfg.Backend)
			if err != nil {
				return fmt.Errorf("init backend client: %w", err)
			}

			lim := limiter.New(cfg.Backend.MaxConcurrent)
			lim.OnChange = func(active, waiting int) {
				m.LimiterActive.Set(float64(active))
				m.LimiterWaiting.Set(float64(waiting))
			}

			var cache *memory.Cache
			if cfg.Cache.Enabled {
				cache = memory.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
				cache.OnHit = m.CacheHits.Inc
				cache.OnMiss = m.CacheMisses.Inc
				cache.OnEvict = m.CacheEvictions.Inc
			}

			store := dataset.NewStore()
			deps := chat.Deps{
				Scorer:  retrieval.New(store, cfg.Retrieval.MaxQueryTokens),
				Cache:   cache,
				Limiter: lim,
				Backend: client,
				Tracker: tr,
				Metrics: m,
				Log:     log,
			}
			if auditor != nil {
				deps.Auditor = auditor
			}
			svc := chat.New(chat.Options{
				TopK:         cfg.Retrieval.TopK,
				SystemPrompt: cfg.Backend.SystemPrompt,
				Timeout:      cfg.Backend.Timeout,
			}, deps)
			defer svc.Wait()

			srv := server.New(cfg, svc, store, m, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)

			// The listener starts right away; chat works without context
			// until the dataset is published.
			loaded := store.LoadInBackground(ctx, dataset.NewLoader(cfg.Dataset, log))
			g.Go(func() error {
				select {
				case <-loaded:
					info := store.Info()
					m.DatasetRecords.Set(float64(info.Records))
					log.Info().Str("source", string(info.Source)).Int("records", info.Records).Msg("dataset ready")
				case <-ctx.Done():
				}
				return nil
			})

			g.Go(func() error {
				pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := client.Ping(pingCtx); err != nil {
					log.Warn().Err(err).Str("url", cfg.Backend.URL).Msg("LLM backend not reachable yet; start it with `ollama serve`")
				}
				return nil
			})

			if auditor != nil {
				g.Go(func() error { return auditor.RunRetention(ctx, time.Hour, log) })
			}

			g.Go(func() error { return srv.ListenAndServe(ctx) })

			log.Info().
				Str("config", configPath).
				Str("model", cfg.Backend.Model).
				Int("max_concurrent", lim.Max()).
				Bool("cache", cache != nil).
				Bool("audit", auditor != nil).
				Msg("starting nutriempower")
			return g.Wait()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&listen, "listen", "", "override listen address, e.g. :3000")
	return cmd
}
