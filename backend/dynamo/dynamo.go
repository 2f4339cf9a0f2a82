// Package dynamo implements the remote cache backend on a single DynamoDB
// table keyed by cache_key. Payloads over 1KB are gzip-compressed when that
// helps; payloads over the item-size budget are chunked across multiple items
// (see chunk.go). Table-level TTL expires entries server-side; reads still
// check expiry themselves because DynamoDB TTL is lazy.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/internal/compress"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const (
	// compressThreshold is the payload size above which gzip is attempted.
	compressThreshold = 1 << 10
	// maxItemPayload leaves headroom under DynamoDB's ~400KB item limit.
	maxItemPayload = 350 << 10
	// chunkSize leaves room for per-chunk item metadata.
	chunkSize = maxItemPayload - (1 << 10)

	defaultTTL = time.Hour
)

// Client is the subset of the DynamoDB API this backend uses. The concrete
// *dynamodb.Client satisfies it; tests supply a fake.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DescribeTimeToLive(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Config tunes the DynamoDB backend.
type Config struct {
	// Client is required.
	Client Client
	// Table is the cache table name. Required.
	Table string
	// DefaultTTL applies when Set is called with ttl <= 0. 0 => 1h.
	DefaultTTL time.Duration
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// item is the table schema. cache_key is the partition key; ttl carries the
// table-level TTL attribute (epoch seconds).
type item struct {
	CacheKey     string `dynamodbav:"cache_key"`
	Data         []byte `dynamodbav:"data,omitempty"`
	Operation    string `dynamodbav:"operation,omitempty"`
	CreatedAt    int64  `dynamodbav:"created_at"`
	TTL          int64  `dynamodbav:"ttl,omitempty"`
	IsCompressed bool   `dynamodbav:"is_compressed,omitempty"`
	OriginalSize int64  `dynamodbav:"original_size,omitempty"`

	// Chunk-set metadata (parent item).
	IsChunked  bool   `dynamodbav:"is_chunked,omitempty"`
	ChunkID    string `dynamodbav:"chunk_id,omitempty"`
	ChunkCount int    `dynamodbav:"chunk_count,omitempty"`

	// Chunk items.
	IsChunk    bool   `dynamodbav:"is_chunk,omitempty"`
	ChunkIndex int    `dynamodbav:"chunk_index"`
	ParentKey  string `dynamodbav:"parent_key,omitempty"`
}

func (it item) expired(now time.Time) bool {
	return it.TTL > 0 && now.Unix() > it.TTL
}

// Backend stores entries in DynamoDB.
type Backend struct {
	client     Client
	table      string
	defaultTTL time.Duration
	log        log.Logger

	tableState tableState
}

var _ backend.Backend = (*Backend)(nil)

// New validates the configuration. The table is created lazily on first write.
func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, backend.NewError(backend.TypeDynamo, "new", "client is required", nil)
	}
	if cfg.Table == "" {
		return nil, backend.NewError(backend.TypeDynamo, "new", "table name is required", nil)
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Backend{
		client:     cfg.Client,
		table:      cfg.Table,
		defaultTTL: ttl,
		log:        log.OrNop(cfg.Logger),
	}, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := backend.ValidateKey(backend.TypeDynamo, "get", key); err != nil {
		return nil, false, err
	}

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            pk(key),
		ConsistentRead: aws.Bool(false),
	})
	if err != nil {
		if isThrottle(err) {
			// Throttled reads are treated as misses; the value is absent now.
			b.log.Warn("dynamo get throttled", log.Fields{"key": secure.Redact(key)})
			return nil, false, nil
		}
		if isTableMissing(err) {
			return nil, false, nil
		}
		return nil, false, backend.NewError(backend.TypeDynamo, "get", "get item", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		b.log.Warn("dynamo item unmarshal failed; dropping", log.Fields{"key": secure.Redact(key)})
		b.bestEffortDelete(ctx, key)
		return nil, false, nil
	}
	if it.expired(time.Now()) {
		b.bestEffortDelete(ctx, key)
		return nil, false, nil
	}

	data := it.Data
	if it.IsChunked {
		data, err = b.readChunks(ctx, key, it)
		if err != nil {
			return nil, false, err
		}
		if data == nil {
			// Incomplete chunk set is a miss, never corruption to surface.
			return nil, false, nil
		}
	}
	if it.IsCompressed {
		data, err = compress.Gunzip(data)
		if err != nil {
			b.log.Warn("dynamo payload decompression failed; dropping", log.Fields{"key": secure.Redact(key)})
			b.bestEffortDelete(ctx, key)
			return nil, false, nil
		}
	}
	return data, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, operation string) error {
	if err := backend.ValidateSet(backend.TypeDynamo, key, payload, ttl); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = b.defaultTTL
	}
	if err := b.ensureTable(ctx); err != nil {
		return err
	}

	data := payload
	compressed := false
	if len(data) > compressThreshold {
		var err error
		data, compressed, err = compress.Gzip(data)
		if err != nil {
			return backend.NewError(backend.TypeDynamo, "set", "compress payload", err)
		}
	}

	now := time.Now()
	base := item{
		CacheKey:     key,
		Operation:    operation,
		CreatedAt:    now.Unix(),
		TTL:          now.Add(ttl).Unix(),
		IsCompressed: compressed,
		OriginalSize: int64(len(payload)),
	}

	if len(data) > maxItemPayload {
		return b.writeChunks(ctx, base, data)
	}

	base.Data = data
	av, err := attributevalue.MarshalMap(base)
	if err != nil {
		return backend.NewError(backend.TypeDynamo, "set", "marshal item", err)
	}
	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	}); err != nil {
		// Durability cannot be silently skipped: throttling propagates here.
		return backend.NewError(backend.TypeDynamo, "set", "put item", err)
	}
	return nil
}

func (b *Backend) Invalidate(ctx context.Context, key string) error {
	if err := backend.ValidateKey(backend.TypeDynamo, "invalidate", key); err != nil {
		return err
	}

	// Read first so a chunked entry's chunk items go with it.
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       pk(key),
	})
	if err == nil && out.Item != nil {
		var it item
		if uerr := attributevalue.UnmarshalMap(out.Item, &it); uerr == nil && it.IsChunked {
			if derr := b.deleteChunks(ctx, key, it); derr != nil {
				b.log.Warn("chunk cleanup failed during invalidate", log.Fields{
					"key": secure.Redact(key), "error": derr.Error(),
				})
			}
		}
	}

	if _, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       pk(key),
	}); err != nil {
		if isThrottle(err) || isTableMissing(err) {
			b.log.Warn("dynamo invalidate skipped", log.Fields{"key": secure.Redact(key)})
			return nil
		}
		return backend.NewError(backend.TypeDynamo, "invalidate", "delete item", err)
	}
	return nil
}

func (b *Backend) InvalidateAll(ctx context.Context) error {
	keys, err := b.scanKeys(ctx, false)
	if err != nil {
		return err
	}
	var dels []types.WriteRequest
	for _, k := range keys {
		dels = append(dels, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: pk(k)},
		})
	}
	if err := b.batchWrite(ctx, dels); err != nil {
		return backend.NewError(backend.TypeDynamo, "invalidate_all", "batch delete", err)
	}
	return nil
}

func (b *Backend) Stats(ctx context.Context) (map[string]any, error) {
	var (
		valid, expired, chunkItems int
		totalBytes                 int64
		lastKey                    map[string]types.AttributeValue
	)
	now := time.Now()
	for {
		out, err := b.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(b.table),
			ProjectionExpression: aws.String("cache_key, #t, is_chunk, original_size"),
			ExpressionAttributeNames: map[string]string{
				"#t": "ttl",
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, backend.NewError(backend.TypeDynamo, "stats", "scan table", err)
		}
		for _, raw := range out.Items {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				continue
			}
			switch {
			case it.IsChunk:
				chunkItems++
			case it.expired(now):
				expired++
			default:
				valid++
			}
			totalBytes += it.OriginalSize
		}
		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			break
		}
	}
	return map[string]any{
		"backend_type":     string(backend.TypeDynamo),
		"table":            b.table,
		"valid_entries":    valid,
		"expired_entries":  expired,
		"chunk_items":      chunkItems,
		"total_size_bytes": totalBytes,
	}, nil
}

func (b *Backend) HealthCheck(ctx context.Context) bool {
	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(b.table),
	})
	return err == nil
}

func (b *Backend) Close(context.Context) error { return nil }

func (b *Backend) bestEffortDelete(ctx context.Context, key string) {
	if _, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       pk(key),
	}); err != nil {
		b.log.Debug("best-effort delete failed", log.Fields{"key": secure.Redact(key)})
	}
}

// scanKeys collects cache keys, optionally only chunk items.
func (b *Backend) scanKeys(ctx context.Context, chunksOnly bool) ([]string, error) {
	var (
		keys    []string
		lastKey map[string]types.AttributeValue
	)
	for {
		in := &dynamodb.ScanInput{
			TableName:            aws.String(b.table),
			ProjectionExpression: aws.String("cache_key, is_chunk, parent_key"),
			ExclusiveStartKey:    lastKey,
		}
		out, err := b.client.Scan(ctx, in)
		if err != nil {
			return nil, backend.NewError(backend.TypeDynamo, "scan", "scan table", err)
		}
		for _, raw := range out.Items {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				continue
			}
			if chunksOnly && !it.IsChunk {
				continue
			}
			keys = append(keys, it.CacheKey)
		}
		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			return keys, nil
		}
	}
}

func pk(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"cache_key": &types.AttributeValueMemberS{Value: key},
	}
}

// isThrottle classifies throttling-class errors that reads treat as misses.
func isThrottle(err error) bool {
	var pte *types.ProvisionedThroughputExceededException
	if errors.As(err, &pte) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ThrottlingException", "RequestLimitExceeded", "ProvisionedThroughputExceededException":
			return true
		}
	}
	return false
}

func isTableMissing(err error) bool {
	var rnf *types.ResourceNotFoundException
	return errors.As(err, &rnf)
}

func isTableExists(err error) bool {
	var riu *types.ResourceInUseException
	return errors.As(err, &riu)
}

func chunkKey(parent, chunkID string, index int) string {
	return fmt.Sprintf("%s#chunk#%s#%d", parent, chunkID, index)
}
