// Package pgsearch runs searches against PostgreSQL full-text indexes and
// turns row changes into content events.
package pgsearch

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	gosearchcache "github.com/dgduncan/go-search-cache"
)

// DefaultPerPage applies when a query does not set a page size.
const DefaultPerPage = 10

//go:embed schema.sql
var querySchema string

// Executor implements gosearchcache.Executor over the posts table. Matches are
// ordered newest first; no relevance ranking is applied.
type Executor struct {
	pool *pgxpool.Pool
}

// New creates an executor on an existing pool.
func New(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// EnsureSchema creates the posts tables and the change notification trigger.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	// multiple statements; pgx uses the simple protocol when there are no args
	if _, err := pool.Exec(ctx, querySchema); err != nil {
		return fmt.Errorf("failed to create search schema: %w", err)
	}
	return nil
}

// Execute counts the matches for q and fetches the requested page in a single
// round-trip.
func (e *Executor) Execute(ctx context.Context, q gosearchcache.Query) (gosearchcache.Result, error) {
	where, args := buildFilter(q)
	perPage, offset := pagination(q)

	batch := &pgx.Batch{}
	batch.Queue("SELECT count(*) FROM posts p WHERE "+where, args...)
	batch.Queue(fmt.Sprintf(
		"SELECT p.id FROM posts p WHERE %s ORDER BY p.published_at DESC, p.id DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2,
	), append(slices.Clone(args), perPage, offset)...)

	br := e.pool.SendBatch(ctx, batch)
	defer br.Close()

	var total int
	if err := br.QueryRow().Scan(&total); err != nil {
		return gosearchcache.Result{}, fmt.Errorf("failed to count search results: %w", err)
	}

	rows, err := br.Query()
	if err != nil {
		return gosearchcache.Result{}, fmt.Errorf("failed to query search results: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return gosearchcache.Result{}, fmt.Errorf("failed to read search results: %w", err)
	}

	return gosearchcache.Result{
		IDs:   ids,
		Total: total,
		Pages: (total + perPage - 1) / perPage,
	}, nil
}

func pagination(q gosearchcache.Query) (perPage, offset int) {
	perPage = q.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page := max(q.Page, 1)
	return perPage, (page - 1) * perPage
}

// buildFilter returns the WHERE clause for q and its positional arguments.
// It works on the normalized query, so queries sharing a cache key always
// produce the same filter.
func buildFilter(q gosearchcache.Query) (string, []any) {
	q, _ = gosearchcache.Normalize(q)

	args := []any{q.Search}
	clauses := []string{
		"p.status = 'publish'",
		"p.search_vector @@ websearch_to_tsquery('simple', $1)",
	}

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.PostTypes) > 0 {
		clauses = append(clauses, "p.post_type = ANY("+next(q.PostTypes)+")")
	}

	if len(q.Categories) > 0 {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM post_categories pc WHERE pc.post_id = p.id AND pc.category_id = ANY("+next(q.Categories)+"))")
	}

	taxonomies := make([]string, 0, len(q.Taxonomies))
	for tax := range q.Taxonomies {
		taxonomies = append(taxonomies, tax)
	}
	slices.Sort(taxonomies)

	for _, tax := range taxonomies {
		terms := q.Taxonomies[tax]
		if len(terms) == 0 {
			continue
		}
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM post_terms pt WHERE pt.post_id = p.id AND pt.taxonomy = "+next(tax)+
				" AND pt.term = ANY("+next(terms)+"))")
	}

	return strings.Join(clauses, " AND "), args
}
