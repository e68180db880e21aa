// Package main runs the token aggregation service: the refresh loop, the
// realtime hub and the HTTP API in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"token-aggregator/internal/aggregation"
	"token-aggregator/internal/alerts"
	"token-aggregator/internal/api"
	"token-aggregator/internal/broadcast"
	"token-aggregator/internal/cache"
	"token-aggregator/internal/config"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/query"
	"token-aggregator/internal/realtime"
	"token-aggregator/internal/refresh"
	"token-aggregator/internal/snapshot"
	"token-aggregator/internal/sources"
	"token-aggregator/internal/storage"
	"token-aggregator/internal/storage/memory"
	"token-aggregator/internal/storage/migrations"
	pgstore "token-aggregator/internal/storage/postgres"
	"token-aggregator/internal/subscription"
)

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file (empty for defaults)")
	addr := flag.String("addr", os.Getenv("HTTP_ADDR"), "HTTP listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory cache and directory regardless of config")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *useMemory {
		cfg.Cache.Backend = config.BackendMemory
		cfg.Directory.Backend = config.BackendMemory
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		MaxAge: cfg.Logging.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + cfg.Refresh.StopTimeout):
			log.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, log)
	close(done)
	if err != nil {
		log.WithError(err).Fatal("server failed")
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	c, closeCache, err := createCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	directory, runs, closeStores, err := createStores(ctx, cfg.Directory, log)
	if err != nil {
		return err
	}
	defer closeStores()

	engine := aggregation.NewEngine(cfg.SourcePriorities(aggregation.DefaultPriorities))
	srcs := sources.FromConfig(cfg.Sources)
	log.WithField("sources", len(srcs)).Info("upstream sources configured")

	store := snapshot.NewStore(snapshot.Options{Cache: c, TTL: cfg.Cache.SnapshotTTL, Logger: log})
	if store.Warm(ctx) {
		log.WithField("records", store.Current().Len()).Info("snapshot restored from cache")
	}

	var alertSink broadcast.AlertSink
	if cfg.Alerts.Kafka.Enabled {
		publisher, err := alerts.NewPublisher(alerts.Config{
			Brokers: cfg.Alerts.Kafka.Brokers,
			Topic:   cfg.Alerts.Kafka.Topic,
		}, log)
		if err != nil {
			return fmt.Errorf("create alert publisher: %w", err)
		}
		defer publisher.Close()
		alertSink = publisher
	}

	registry := subscription.NewRegistry()
	broadcaster := broadcast.New(broadcast.Options{
		Registry:  registry,
		Snapshots: store,
		Alerts:    alertSink,
		Logger:    log,
	})
	hub := realtime.NewHub(realtime.Options{Logger: log})
	hub.SetCommandHandler(broadcaster)
	broadcaster.SetEmitter(hub)
	defer hub.Close()

	refresher := refresh.New(refresh.Options{
		Sources:            srcs,
		Engine:             engine,
		Store:              store,
		Notifier:           broadcaster,
		Directory:          directory,
		Runs:               runs,
		Interval:           cfg.Refresh.Interval,
		FetchTimeout:       cfg.Refresh.FetchTimeout,
		StopTimeout:        cfg.Refresh.StopTimeout,
		TopN:               cfg.Refresh.TopN,
		PriceThresholdPct:  cfg.Refresh.PriceThresholdPct,
		VolumeThresholdPct: cfg.Refresh.VolumeThresholdPct,
		Logger:             log,
	})

	reader := query.NewService(query.Options{
		Snapshots:       store,
		Engine:          engine,
		Sources:         srcs,
		Cache:           c,
		Directory:       directory,
		QueryTTL:        cfg.Cache.QueryTTL,
		TokenTTL:        cfg.Cache.TokenTTL,
		UpstreamTimeout: cfg.Refresh.FetchTimeout,
		Logger:          log,
	})

	server := api.NewServer(api.Options{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Reader:          reader,
		Refresher:       refresher,
		Snapshots:       store,
		Clients:         broadcaster,
		Realtime:        hub,
		Cache:           c,
		RateLimit: api.RateLimit{
			Enabled:  cfg.RateLimit.Enabled,
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		},
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         log,
	})

	refresher.Start(ctx)
	serveErr := server.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Refresh.StopTimeout)
	defer cancel()
	if err := refresher.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("refresh loop did not stop cleanly")
	}
	return serveErr
}

func createCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return cache.NewMemory(), func() {}, nil
	}

	r, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return r, func() { _ = r.Close() }, nil
}

func createStores(ctx context.Context, cfg config.DirectoryConfig, log logrus.FieldLogger) (storage.TokenDirectory, storage.RefreshRunStore, func(), error) {
	if cfg.Backend != config.BackendPostgres {
		return memory.NewTokenDirectory(), memory.NewRefreshRunStore(memory.DefaultRunCapacity), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.DSN, pgstore.PoolOptions{
		MaxConns:       cfg.MaxConns,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return pgstore.NewTokenDirectory(pool), pgstore.NewRefreshRunStore(pool), pool.Close, nil
}
