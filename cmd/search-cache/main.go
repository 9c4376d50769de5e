// Package main is the entry point for the search cache server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/config"
	"github.com/dgduncan/go-search-cache/executors/pgsearch"
	"github.com/dgduncan/go-search-cache/internal/admin"
	"github.com/dgduncan/go-search-cache/internal/logging"
)

const usage = `usage: search-cache [-config path] <command>

commands:
  serve   run the search and admin HTTP server
  flush   clear every cached search result and exit
`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "serve"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "flush":
		err = flush(ctx, cfg, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("search-cache failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newSearchCache(store gosearchcache.Cache, cfg *config.Config, metrics *gosearchcache.Metrics, logger *slog.Logger) *gosearchcache.SearchCache {
	return gosearchcache.New(store, &gosearchcache.Config{
		Group:             cfg.Cache.Group,
		TTL:               cfg.Cache.TTL,
		StoreTimeout:      cfg.Cache.StoreTimeout,
		InvalidateTimeout: cfg.Cache.InvalidateTimeout,
		CacheEmpty:        cfg.Cache.CacheEmpty,
		Coalesce:          cfg.Cache.Coalesce,
		Metrics:           metrics,
	}, nil, logger)
}

func flush(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sc := newSearchCache(store, cfg, nil, logger)
	if err := sc.ManualFlush(ctx); err != nil {
		return err
	}

	fmt.Printf("search cache group %q cleared\n", sc.Group())
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting search cache", "store", cfg.Cache.Type, "group", cfg.Cache.Group, "ttl", cfg.Cache.TTL)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var metrics *gosearchcache.Metrics
	if cfg.Metrics.Enabled {
		metrics = gosearchcache.NewMetrics(prometheus.DefaultRegisterer)
		logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		logger.Info("prometheus metrics disabled")
	}

	sc := newSearchCache(store, cfg, metrics, logger)

	var exec gosearchcache.Executor
	if cfg.Search.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Search.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect to search database: %w", err)
		}
		defer pool.Close()

		if cfg.Search.EnsureSchema {
			if err := pgsearch.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("failed to create search schema: %w", err)
			}
		}
		exec = pgsearch.New(pool)

		if cfg.Search.Listen {
			l := pgsearch.NewListener(cfg.Search.PostgresURL, func(ctx context.Context, e gosearchcache.ContentEvent) {
				sc.HandleContentEvent(ctx, e)
			}, logger)
			go func() {
				if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("content listener stopped", "error", err)
				}
			}()
		}
	} else {
		logger.Warn("search.postgres_url not set, /search is disabled")
	}

	if cfg.Server.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin routes are unauthenticated")
	}

	srv := admin.New(sc, exec, &admin.Config{
		AdminToken:      cfg.Server.AdminToken,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Logger:          logger,
	})

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}
