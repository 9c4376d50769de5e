//go:build !integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dgduncan/go-search-cache/caches"
)

func TestNewRedisCache(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), nil, nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, caches.ErrValidation)
}

func TestNewFromURLInvalid(t *testing.T) {
	t.Parallel()

	c, err := NewFromURL(context.Background(), "not-a-redis-url", nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, caches.ErrValidation)
}

func TestInGroup(t *testing.T) {
	t.Parallel()

	keys := []string{
		"relevanssi_search:search_a",
		"relevanssi_search:nested:search_b",
		"relevanssi_search:search_c",
	}
	assert.Equal(t,
		[]string{"relevanssi_search:search_a", "relevanssi_search:search_c"},
		inGroup("relevanssi_search", keys))
	assert.Empty(t, inGroup("other", []string{"relevanssi_search:search_a"}))
}

func TestEscapePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain group", in: "relevanssi_search:", want: "relevanssi_search:"},
		{name: "glob characters", in: "a*b?c[d]:", want: `a\*b\?c\[d\]:`},
		{name: "backslash", in: `a\b:`, want: `a\\b:`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapePattern(tt.in))
		})
	}
}
