package main

import (
	"context"
	"log"

	"github.com/delphian/tronrelic-sub011/internal/app"
	"github.com/delphian/tronrelic-sub011/internal/chainfeed"
	"github.com/delphian/tronrelic-sub011/internal/config"
	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/handlers/cli"
	"github.com/delphian/tronrelic-sub011/internal/infra/storage/redis"
	"github.com/delphian/tronrelic-sub011/internal/infra/tron"
	"github.com/delphian/tronrelic-sub011/internal/monitor"
	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"
	"github.com/delphian/tronrelic-sub011/internal/pkg/resilience/retry"
	"github.com/delphian/tronrelic-sub011/internal/pkg/telemetry"
	transporthttp "github.com/delphian/tronrelic-sub011/internal/pkg/transport/http"
	"github.com/delphian/tronrelic-sub011/internal/plugin"
	"github.com/delphian/tronrelic-sub011/internal/plugins/whalealert"
)

// serviceName identifies the process in telemetry backends.
const serviceName = "tronrelic"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, serviceName)
		if err != nil {
			log.Fatalf("failed to initialize telemetry: %v", err)
		}
		defer shutdown(ctx) //nolint:errcheck // best effort flush on exit
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // stdout sync failure is harmless

	var (
		checkpointStorage chainfeed.CheckpointStorage
		pluginCache       plugin.Cache
	)
	if cfg.RedisAddr != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal(ctx, "failed to connect to redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck

		checkpointStorage = redisClient
		pluginCache = redisClient
	}

	node := tron.NewClient(cfg.TronNodeURL, transporthttp.NewClient(
		transporthttp.WithTimeout(cfg.TronRequestTimeout),
	))

	thresholds := dispatch.Thresholds{
		DelegationAmountTRX: cfg.DelegationAmountTRX,
		StakeAmountTRX:      cfg.StakeAmountTRX,
	}

	registry := dispatch.NewRegistry()

	err = plugin.InitAll(ctx,
		plugin.Services{
			Registry:   registry,
			Cache:      pluginCache,
			Thresholds: thresholds,
		},
		whalealert.New(cfg.WhaleAlertMinTRX),
	)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize plugins", "error", err)
	}

	feedOpts := []chainfeed.Option{
		chainfeed.WithThresholds(thresholds),
		chainfeed.WithPollInterval(cfg.PollInterval),
		chainfeed.WithRetry(retry.New()),
	}
	if checkpointStorage != nil {
		feedOpts = append(feedOpts, chainfeed.WithCheckpointStorage(checkpointStorage))
	}
	feed := chainfeed.New(node, registry, feedOpts...)

	mon, err := monitor.New(registry,
		monitor.WithPollInterval(cfg.MonitorPollInterval),
		monitor.WithWatchedTypes(dispatch.ContractTransfer, dispatch.ContractDelegateResource),
	)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize monitor", "error", err)
	}

	svc := app.New(feed, mon, registry, app.WithDrainTimeout(cfg.ShutdownDrainTimeout))

	if err := cli.Run(ctx, svc, node); err != nil {
		logger.Fatal(ctx, "application failed", "error", err)
	}
}
