package admin

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	gosearchcache "github.com/dgduncan/go-search-cache"
)

// Handler holds the HTTP handlers
type Handler struct {
	cache  *gosearchcache.SearchCache
	exec   gosearchcache.Executor
	logger *slog.Logger
}

// NewHandler creates a new handler for the given cache and executor. A nil
// logger discards output.
func NewHandler(sc *gosearchcache.SearchCache, exec gosearchcache.Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		cache:  sc,
		exec:   exec,
		logger: logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	Group string `json:"group"`
	gosearchcache.Stats
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Stats handles GET /admin/search-cache/stats
func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, statsResponse{Group: h.cache.Group(), Stats: h.cache.Stats()})
}

// Flush handles POST /admin/search-cache/flush
func (h *Handler) Flush(c echo.Context) error {
	if err := h.cache.ManualFlush(c.Request().Context()); err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// ContentEvent handles POST /admin/content-events
func (h *Handler) ContentEvent(c echo.Context) error {
	var e gosearchcache.ContentEvent
	if err := c.Bind(&e); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid event body"})
	}
	invalidated := h.cache.HandleContentEvent(c.Request().Context(), e)
	return c.JSON(http.StatusAccepted, map[string]bool{"invalidated": invalidated})
}

// Search handles GET /search
func (h *Handler) Search(c echo.Context) error {
	if h.exec == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "search backend not configured"})
	}

	q, err := parseQuery(c.QueryParams())
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()
	res, err := h.cache.LookupOrExecute(ctx, q, h.exec)
	if err != nil {
		h.logger.ErrorContext(ctx, "search failed", "search", q.Search, "error", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "search failed"})
	}
	if res.IDs == nil {
		res.IDs = []int64{}
	}
	return c.JSON(http.StatusOK, res)
}

const taxPrefix = "tax."

// parseQuery maps request parameters onto a Query. List parameters accept
// both repetition and comma separation. Taxonomy filters use tax.<name>=terms.
// posts_per_page wins over per_page when both are set. Anything else lands in
// Extra.
func parseQuery(v url.Values) (gosearchcache.Query, error) {
	q := gosearchcache.Query{Search: v.Get("s")}

	for key, values := range v {
		switch {
		case key == "s":
		case key == "post_type":
			q.PostTypes = splitList(values)
		case key == "per_page", key == "posts_per_page":
			if key == "per_page" && v.Has("posts_per_page") {
				continue
			}
			n, err := strconv.Atoi(values[0])
			if err != nil {
				return q, errors.New("per_page must be an integer")
			}
			q.PerPage = n
		case key == "paged":
			n, err := strconv.Atoi(values[0])
			if err != nil {
				return q, errors.New("paged must be an integer")
			}
			q.Page = n
		case key == "cat":
			for _, s := range splitList(values) {
				id, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return q, errors.New("cat must be a list of integers")
				}
				q.Categories = append(q.Categories, id)
			}
		case strings.HasPrefix(key, taxPrefix) && len(key) > len(taxPrefix):
			if q.Taxonomies == nil {
				q.Taxonomies = make(map[string][]string)
			}
			q.Taxonomies[key[len(taxPrefix):]] = splitList(values)
		default:
			if q.Extra == nil {
				q.Extra = make(map[string]string)
			}
			q.Extra[key] = values[0]
		}
	}

	return q, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
