package gosearchcache

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Query describes a single search request. Only the named fields take part in
// caching decisions; anything in Extra is passed through to the executor but
// ignored when deriving the key.
type Query struct {
	Search     string
	PostTypes  []string
	PerPage    int
	Page       int
	Categories []int64
	Taxonomies map[string][]string

	// Extra carries request parameters the cache does not recognize, such as
	// timestamps or session identifiers.
	Extra map[string]string
}

// Result is what an executor returns for a query: the ordered ids of the
// matching content plus the totals needed to render pagination.
type Result struct {
	IDs   []int64 `json:"ids"`
	Total int     `json:"total"`
	Pages int     `json:"pages"`
}

// Empty reports whether the result matched nothing.
func (r Result) Empty() bool {
	return len(r.IDs) == 0
}

func (r Result) clone() Result {
	r.IDs = slices.Clone(r.IDs)
	return r
}

// Executor runs a search against the real index.
type Executor interface {
	Execute(ctx context.Context, q Query) (Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, q Query) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, q Query) (Result, error) {
	return f(ctx, q)
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	octetPattern = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
)

// sanitizeSearch strips markup, percent-encoded octets and control characters,
// collapses whitespace and lower-cases the remaining text.
func sanitizeSearch(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = octetPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// normalizeTerms trims, sorts and deduplicates filter values. Case is kept:
// executors match filter values verbatim.
func normalizeTerms(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Normalize returns the canonical form of q used for key derivation. The
// second return value is false when q has no usable search text, in which case
// the query must bypass the cache.
//
// Filter values are only trimmed, sorted and deduplicated, so two queries with
// the same normalized form select the same content. Search text is sanitized
// and lower-cased; executors are expected to match it case-insensitively.
func Normalize(q Query) (Query, bool) {
	n := Query{
		Search:    sanitizeSearch(q.Search),
		PostTypes: normalizeTerms(q.PostTypes),
		PerPage:   max(q.PerPage, 0),
		Page:      max(q.Page, 1),
	}
	if n.Search == "" {
		return n, false
	}

	if len(q.Categories) > 0 {
		n.Categories = slices.Clone(q.Categories)
		slices.Sort(n.Categories)
		n.Categories = slices.Compact(n.Categories)
	}

	for tax, terms := range q.Taxonomies {
		tax = strings.TrimSpace(tax)
		terms = normalizeTerms(terms)
		if tax == "" || len(terms) == 0 {
			continue
		}
		if n.Taxonomies == nil {
			n.Taxonomies = make(map[string][]string)
		}
		n.Taxonomies[tax] = normalizeTerms(append(n.Taxonomies[tax], terms...))
	}

	return n, true
}
