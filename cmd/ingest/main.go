package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/kalshi-ingest/pkg/cache"
	"github.com/Sternrassler/kalshi-ingest/pkg/catalog"
	"github.com/Sternrassler/kalshi-ingest/pkg/client"
	"github.com/Sternrassler/kalshi-ingest/pkg/config"
	"github.com/Sternrassler/kalshi-ingest/pkg/logging"
	"github.com/Sternrassler/kalshi-ingest/pkg/ratelimit"
	"github.com/Sternrassler/kalshi-ingest/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	parallel := flag.Bool("parallel", false, "use the two-phase parallel fetch strategy")
	flag.Parse()

	if err := run(*configPath, *parallel); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, parallel bool) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if parallel {
		cfg.Session.Parallel = true
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	ctx := context.Background()

	var pageCache *cache.Manager
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Cache.Addr, err)
		}
		pageCache = cache.NewManager(redisClient, cfg.Cache.TTL)
		logger.Info().Str("addr", cfg.Cache.Addr).Msg("Page cache enabled")
	}

	clientCfg := client.DefaultConfig(cfg.API.BaseURL)
	clientCfg.UserAgent = cfg.API.UserAgent
	clientCfg.InsecureSkipVerify = cfg.API.InsecureSkipVerify
	clientCfg.Cache = pageCache

	apiClient, err := client.New(clientCfg)
	if err != nil {
		return err
	}

	governorCfg := ratelimit.DefaultConfig()
	governorCfg.RequestsPerMinute = cfg.Pacing.RequestsPerMinute
	governorCfg.Cooldown = cfg.Pacing.Cooldown
	governorCfg.InitialDelay = cfg.Pacing.InitialDelay
	governorCfg.MinDelay = cfg.Pacing.MinDelay
	governorCfg.MaxDelay = cfg.Pacing.MaxDelay
	governor := ratelimit.NewGovernor(governorCfg, logging.NewLogger("ratelimit"))

	recoveryCfg := client.DefaultRecoveryConfig()
	recoveryCfg.MaxAttempts = cfg.Recovery.MaxAttempts
	recoveryCfg.WaitBase = cfg.Recovery.WaitBase
	recoverer := client.NewRecoverer(apiClient, recoveryCfg)

	retryCfg := client.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
	retryCfg.AttemptTimeout = cfg.API.AttemptTimeout
	fetcher := client.NewFetcher(apiClient, governor, recoverer, retryCfg)

	cat := catalog.Load(cfg.Session.DiscoveryDir, logger)
	logger.Info().Int("endpoints", cat.Len()).Msg("Endpoint catalog loaded")

	orchestrator := session.New(fetcher, cat, session.Config{
		OutputRoot: cfg.Session.OutputRoot,
		Parallel:   cfg.Session.Parallel,
		Workers:    cfg.Session.Workers,
	})

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		return err
	}
	if len(summary.FailedEndpoints) > 0 && len(summary.SuccessfulEndpoints) == 0 {
		return fmt.Errorf("all %d endpoints failed", len(summary.FailedEndpoints))
	}
	return nil
}
