package postgres

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"errors"
	"io"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches"
)

var (
	// ErrPingFailed is returned if the initial ping to the database returns an error
	ErrPingFailed = errors.New("ping returned error")
)

var (
	//go:embed create_table.sql
	queryCreateTable string
	//go:embed delete_expired.sql
	queryDeleteExpired string
	//go:embed delete_group.sql
	queryDeleteGroup string
	//go:embed fetch_by_id.sql
	queryFetchByID string
	//go:embed insert_item.sql
	queryInsertItem string
)

// Config defines the configuration options for the PostgreSQL cache implementation.
type Config struct {
	// DeleteExpiredItems enables automatic cleanup of expired cache entries
	// through a background task.
	DeleteExpiredItems bool

	// ExpiredTaskTimer defines the interval at which the cleanup task runs.
	// Shorter durations may impact database performance.
	ExpiredTaskTimer time.Duration

	// Logger receives cleanup task failures. Optional.
	Logger *slog.Logger
}

// Cache implements the gosearchcache.Cache interface using PostgreSQL as the
// storage backend. Reads filter out expired rows, so expiry does not depend on
// the cleanup task running.
type Cache struct {
	db *sql.DB

	now func() time.Time
}

// Get retrieves a cache item from PostgreSQL by its key.
// Returns caches.ErrNoCacheItem if the item doesn't exist or has expired.
func (p *Cache) Get(ctx context.Context, k string) (*gosearchcache.CacheItem, error) {
	var response []byte
	err := p.db.QueryRowContext(ctx, queryFetchByID, k, p.now().UTC()).Scan(&response)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}

	var item gosearchcache.CacheItem
	if err := gob.NewDecoder(bytes.NewReader(response)).Decode(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// Set stores a cache item in PostgreSQL, replacing any existing row for k.
// It handles the serialization of the cache item using gob encoding.
func (p *Cache) Set(ctx context.Context, k string, v *gosearchcache.CacheItem, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = caches.DefaultExpiredDuration
	}

	var buff bytes.Buffer
	if err := gob.NewEncoder(&buff).Encode(v); err != nil {
		return err
	}

	now := p.now().UTC()
	_, err := p.db.ExecContext(ctx, queryInsertItem, k, caches.GroupOf(k), buff.Bytes(), now, now.Add(ttl))
	return err
}

// DeleteGroup removes every row written under group.
func (p *Cache) DeleteGroup(ctx context.Context, group string) error {
	_, err := p.db.ExecContext(ctx, queryDeleteGroup, group)
	return err
}

func createTable(ctx context.Context, db *sql.DB) error {
	// multiple statements, cannot be prepared
	_, err := db.ExecContext(ctx, queryCreateTable)
	return err
}

func deleteExpiredItems(ctx context.Context, db *sql.DB, now time.Time) error {
	_, err := db.ExecContext(ctx, queryDeleteExpired, now)
	return err
}

func expiredTask(ctx context.Context, db *sql.DB, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "expired item cleanup stopped")
			return
		case <-t.C:
			if err := deleteExpiredItems(ctx, db, time.Now().UTC()); err != nil {
				logger.WarnContext(ctx, "error deleting expired cache items", "error", err)
			}
		}
	}
}

// New creates a new PostgreSQL cache instance with the provided configuration.
// It verifies the database connection, creates the necessary table structure, and
// optionally starts the cleanup task for expired items. The cleanup task stops
// when ctx is cancelled.
//
// Returns an error if:
// - The database handle is nil
// - The database connection test fails
// - Table creation fails
func New(ctx context.Context, db *sql.DB, config *Config) (*Cache, error) {
	if db == nil {
		return nil, caches.ValidationError{
			Reason: "nil db",
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(ErrPingFailed, err)
	}

	if err := createTable(ctx, db); err != nil {
		return nil, err
	}

	if config != nil && config.DeleteExpiredItems {
		interval := config.ExpiredTaskTimer
		if interval <= 0 {
			interval = caches.DefaultExpiredTaskTimer
		}

		logger := config.Logger
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}

		go expiredTask(ctx, db, interval, logger)
	}

	return &Cache{
		db: db,

		now: time.Now,
	}, nil
}
