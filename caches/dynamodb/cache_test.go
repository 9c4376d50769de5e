//go:build !integration

package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches"
)

// fakeAPI keeps items in memory. BatchWriteItem leaves the first request of
// each call unprocessed while unprocessedOnce is set.
type fakeAPI struct {
	items map[string]map[string]types.AttributeValue

	unprocessedOnce bool
	batchCalls      int
	getErr          error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m[attrKey].(*types.AttributeValueMemberS).Value
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	group := in.ExpressionAttributeValues[":grp"].(*types.AttributeValueMemberS).Value

	var out []map[string]types.AttributeValue
	for k, it := range f.items {
		if it[attrGroup].(*types.AttributeValueMemberS).Value == group {
			out = append(out, map[string]types.AttributeValue{attrKey: &types.AttributeValueMemberS{Value: k}})
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batchCalls++

	unprocessed := map[string][]types.WriteRequest{}
	for table, reqs := range in.RequestItems {
		for i, r := range reqs {
			if f.unprocessedOnce && i == 0 {
				unprocessed[table] = append(unprocessed[table], r)
				continue
			}
			delete(f.items, keyOf(r.DeleteRequest.Key))
		}
	}
	f.unprocessedOnce = false

	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

func newTestCache(t *testing.T, api API) (*Cache, *time.Time) {
	t.Helper()

	c, err := New(context.Background(), api, &Config{Table: "search_cache"})
	require.NoError(t, err)

	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	return c, &now
}

func TestNewDynamoDBCache(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		client      API
		config      *Config
		expectedErr error
	}{
		{
			name:        "nil client returns error",
			client:      nil,
			config:      &Config{Table: "test-table"},
			expectedErr: caches.ErrValidation,
		},
		{
			name:        "nil config returns error",
			client:      newFakeAPI(),
			config:      nil,
			expectedErr: caches.ErrValidation,
		},
		{
			name:        "empty table returns error",
			client:      newFakeAPI(),
			config:      &Config{},
			expectedErr: caches.ErrValidation,
		},
		{
			name:   "valid config",
			client: newFakeAPI(),
			config: &Config{Table: "test-table", ConsistentRead: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := New(context.Background(), tt.client, tt.config)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, cache)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.config.Table, cache.table)
			assert.Equal(t, tt.config.ConsistentRead, cache.consistentRead)
		})
	}
}

func TestDynamoDBCacheGetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	c, now := newTestCache(t, api)

	_, err := c.Get(ctx, "relevanssi_search:search_a")
	assert.ErrorIs(t, err, caches.ErrNoCacheItem)

	item := &gosearchcache.CacheItem{
		Result:     gosearchcache.Result{IDs: []int64{101, 203, 408}, Total: 3, Pages: 1},
		CreatedAt:  *now,
		Expiration: now.Add(time.Hour),
	}
	require.NoError(t, c.Set(ctx, "relevanssi_search:search_a", item, time.Hour))

	stored := api.items["relevanssi_search:search_a"]
	assert.Equal(t, "relevanssi_search", stored[attrGroup].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, fmt.Sprint(now.Add(time.Hour).Unix()), stored[attrExpiredAt].(*types.AttributeValueMemberN).Value)

	got, err := c.Get(ctx, "relevanssi_search:search_a")
	require.NoError(t, err)
	assert.Equal(t, item.Result, got.Result)

	*now = now.Add(time.Hour)
	_, err = c.Get(ctx, "relevanssi_search:search_a")
	assert.ErrorIs(t, err, caches.ErrCacheItemExpired)
}

func TestDynamoDBCacheGetError(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.getErr = errors.New("throttled")
	c, _ := newTestCache(t, api)

	_, err := c.Get(context.Background(), "relevanssi_search:search_a")
	assert.EqualError(t, err, "throttled")
}

func TestDynamoDBCacheDeleteGroup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	api := newFakeAPI()
	c, _ := newTestCache(t, api)

	item := &gosearchcache.CacheItem{Result: gosearchcache.Result{IDs: []int64{1}}}
	for i := 0; i < 30; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("relevanssi_search:search_%02d", i), item, time.Hour))
	}
	require.NoError(t, c.Set(ctx, "other:search_x", item, time.Hour))

	api.unprocessedOnce = true
	require.NoError(t, c.DeleteGroup(ctx, "relevanssi_search"))

	// 30 deletes need two batches, plus one retry for the unprocessed request
	assert.Equal(t, 3, api.batchCalls)
	assert.Len(t, api.items, 1)
	assert.Contains(t, api.items, "other:search_x")
}
