package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches/dynamodb"
	"github.com/dgduncan/go-search-cache/caches/local"
	"github.com/dgduncan/go-search-cache/caches/postgres"
	"github.com/dgduncan/go-search-cache/caches/redis"
	"github.com/dgduncan/go-search-cache/config"
)

// openStore builds the configured cache store. The returned func releases
// its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gosearchcache.Cache, func(), error) {
	noop := func() {}

	switch cfg.Cache.Type {
	case config.CacheTypeRedis:
		c, err := redis.NewFromURL(ctx, cfg.Cache.Redis.URL, nil)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, func() { _ = c.Close() }, nil

	case config.CacheTypePostgres:
		db, err := sql.Open("postgres", cfg.Cache.Postgres.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres: %w", err)
		}
		c, err := postgres.New(ctx, db, &postgres.Config{
			DeleteExpiredItems: cfg.Cache.Postgres.DeleteExpiredItems,
			ExpiredTaskTimer:   cfg.Cache.Postgres.CleanupInterval,
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("failed to initialize postgres cache: %w", err)
		}
		return c, func() { _ = db.Close() }, nil

	case config.CacheTypeDynamoDB:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Cache.DynamoDB.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Cache.DynamoDB.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load aws config: %w", err)
		}

		client := ddb.NewFromConfig(awsCfg, func(o *ddb.Options) {
			if cfg.Cache.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Cache.DynamoDB.Endpoint)
			}
		})

		if cfg.Cache.DynamoDB.CreateTable {
			if err := dynamodb.CreateTable(ctx, client, cfg.Cache.DynamoDB.Table); err != nil {
				return nil, noop, fmt.Errorf("failed to create dynamodb table: %w", err)
			}
		}

		c, err := dynamodb.New(ctx, client, &dynamodb.Config{Table: cfg.Cache.DynamoDB.Table, ConsistentRead: true})
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil

	default:
		c, err := local.NewBasicCache(cfg.Cache.Local.MaxEntries)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	}
}
