package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	gosearchcache "github.com/dgduncan/go-search-cache"
	"github.com/dgduncan/go-search-cache/caches"
)

const (
	attrKey       = "key"
	attrGroup     = "grp"
	attrExpiredAt = "expired_at"

	// maxBatchWrite is the DynamoDB limit on requests per BatchWriteItem.
	maxBatchWrite = 25

	maxUnprocessedRetries = 5

	tableWaitTimeout = 2 * time.Minute
)

// API is the subset of *dynamodb.Client used by the cache.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Config defines the configuration options for the DynamoDB cache implementation.
type Config struct {
	Table string

	// ConsistentRead makes Get observe invalidations immediately instead of
	// within DynamoDB's eventual consistency window.
	ConsistentRead bool
}

// Cache implements the gosearchcache.Cache interface using Amazon DynamoDB as
// the storage backend. The expired_at attribute is meant to be configured as
// the table's TTL attribute; since TTL deletion lags, Get also checks it.
type Cache struct {
	client API

	table          string
	consistentRead bool
	now            func() time.Time
}

type cacheItem struct {
	Key       string `dynamodbav:"key"`
	Group     string `dynamodbav:"grp"`
	Item      []byte `dynamodbav:"item"`
	CreatedAt int64  `dynamodbav:"created_at"`
	ExpiredAt int64  `dynamodbav:"expired_at"`
}

// Get retrieves a cache item from DynamoDB by its key. It returns the cached item
// if found and not expired, or an appropriate error otherwise.
func (c *Cache) Get(ctx context.Context, k string) (*gosearchcache.CacheItem, error) {
	key, err := attributevalue.Marshal(k)
	if err != nil {
		return nil, err
	}

	output, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key: map[string]types.AttributeValue{
			attrKey: key,
		},
		ConsistentRead: aws.Bool(c.consistentRead),
		TableName:      aws.String(c.table),
	})
	if err != nil {
		return nil, err
	}

	if output.Item == nil {
		return nil, caches.ErrNoCacheItem
	}

	var item cacheItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, err
	}

	if c.now().UTC().Unix() >= item.ExpiredAt {
		return nil, caches.ErrCacheItemExpired
	}

	var ci gosearchcache.CacheItem
	if err := gobDecode(item.Item, &ci); err != nil {
		return nil, err
	}

	return &ci, nil
}

// Set stores a cache item in DynamoDB with the provided key and value,
// replacing any existing item.
func (c *Cache) Set(ctx context.Context, k string, v *gosearchcache.CacheItem, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = caches.DefaultExpiredDuration
	}
	createdAt := c.now().UTC()

	encItem, err := gobEncode(v)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(cacheItem{
		Key:       k,
		Group:     caches.GroupOf(k),
		Item:      encItem,
		CreatedAt: createdAt.Unix(),
		ExpiredAt: createdAt.Add(ttl).Unix(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      av,
	})
	return err
}

// DeleteGroup scans the table for items of group and deletes them in batches.
func (c *Cache) DeleteGroup(ctx context.Context, group string) error {
	p := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:                aws.String(c.table),
		FilterExpression:         aws.String("#grp = :grp"),
		ProjectionExpression:     aws.String("#key"),
		ExpressionAttributeNames: map[string]string{"#grp": attrGroup, "#key": attrKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":grp": &types.AttributeValueMemberS{Value: group},
		},
		ConsistentRead: aws.Bool(true),
	})

	var pending []types.WriteRequest
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan cache group %q: %w", group, err)
		}

		for _, it := range page.Items {
			pending = append(pending, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{attrKey: it[attrKey]}},
			})
			if len(pending) == maxBatchWrite {
				if err := c.batchDelete(ctx, pending); err != nil {
					return err
				}
				pending = pending[:0]
			}
		}
	}

	if len(pending) > 0 {
		return c.batchDelete(ctx, pending)
	}

	return nil
}

func (c *Cache) batchDelete(ctx context.Context, requests []types.WriteRequest) error {
	items := map[string][]types.WriteRequest{c.table: requests}

	for attempt := 0; attempt < maxUnprocessedRetries; attempt++ {
		out, err := c.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: items})
		if err != nil {
			return fmt.Errorf("delete cache items: %w", err)
		}

		if len(out.UnprocessedItems[c.table]) == 0 {
			return nil
		}
		items = out.UnprocessedItems
	}

	return fmt.Errorf("delete cache items: %d requests left unprocessed", len(items[c.table]))
}

// New creates a new DynamoDB cache instance with the provided configuration.
// It validates the configuration and sets default values where appropriate.
// Returns an error if the client is nil or if the configuration is invalid.
func New(_ context.Context, client API, config *Config) (*Cache, error) {
	if client == nil {
		return nil, caches.ValidationError{
			Reason: "nil client",
		}
	}

	if config == nil || config.Table == "" {
		return nil, caches.ValidationError{
			Reason: "table name required",
		}
	}

	return &Cache{
		client: client,

		table:          config.Table,
		consistentRead: config.ConsistentRead,
		now:            time.Now,
	}, nil
}
