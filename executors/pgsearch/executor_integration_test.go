//go:build integration

package pgsearch

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches/local"
)

func setup(t *testing.T) (string, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("search_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))

	return url, pool
}

func insertPost(t *testing.T, pool *pgxpool.Pool, id int64, title string, publishedAt time.Time, categories ...int64) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		"INSERT INTO posts (id, post_type, title, published_at) VALUES ($1, 'post', $2, $3)",
		id, title, publishedAt)
	require.NoError(t, err)

	for _, c := range categories {
		_, err := pool.Exec(ctx, "INSERT INTO post_categories (post_id, category_id) VALUES ($1, $2)", id, c)
		require.NoError(t, err)
	}
}

func TestSearchWithInvalidationIntegration(t *testing.T) {
	url, pool := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertPost(t, pool, 408, "Ceramic brake pads", base.Add(1*time.Hour), 3)
	insertPost(t, pool, 203, "Brake pads for trucks", base.Add(2*time.Hour))
	insertPost(t, pool, 101, "Choosing brake pads", base.Add(3*time.Hour), 3)
	insertPost(t, pool, 900, "Oil filters", base.Add(4*time.Hour))

	store, err := local.NewBasicCache(100)
	require.NoError(t, err)
	sc := gosearchcache.New(store, nil, nil, nil)
	exec := New(pool)

	q := gosearchcache.Query{Search: "brake pads", PostTypes: []string{"post"}, PerPage: 10, Page: 1}

	res, err := sc.LookupOrExecute(ctx, q, exec)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 203, 408}, res.IDs)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Pages)

	t.Run("pagination and categories", func(t *testing.T) {
		res, err := exec.Execute(ctx, gosearchcache.Query{Search: "brake pads", PerPage: 2, Page: 2})
		require.NoError(t, err)
		assert.Equal(t, []int64{408}, res.IDs)
		assert.Equal(t, 2, res.Pages)

		res, err = exec.Execute(ctx, gosearchcache.Query{Search: "brake", Categories: []int64{3}})
		require.NoError(t, err)
		assert.Equal(t, []int64{101, 408}, res.IDs)
	})

	events := make(chan gosearchcache.ContentEvent, 8)
	l := NewListener(url, func(ctx context.Context, e gosearchcache.ContentEvent) {
		sc.HandleContentEvent(ctx, e)
		events <- e
	}, nil)
	go func() { _ = l.Run(ctx) }()

	// give the listener time to issue LISTEN
	time.Sleep(500 * time.Millisecond)

	insertPost(t, pool, 512, "Brake pads review", base.Add(-time.Hour))

	select {
	case e := <-events:
		assert.Equal(t, gosearchcache.EventCreated, e.Kind)
		assert.Equal(t, int64(512), e.ID)
	case <-time.After(10 * time.Second):
		t.Fatal("no content event received")
	}

	res, err = sc.LookupOrExecute(ctx, q, exec)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 203, 408, 512}, res.IDs)
	assert.Equal(t, uint64(1), sc.Stats().Invalidations)
}
