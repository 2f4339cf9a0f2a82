package dynamo

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

// tableState caches the outcome of the first existence check so every write
// does not pay a DescribeTable round-trip.
type tableState struct {
	mu      sync.Mutex
	known   bool
	checked time.Time
}

const tableActivePollInterval = time.Second

// ensureTable creates the cache table if needed and waits for it to become
// active. Creation is idempotent: a concurrent creator's ResourceInUse error
// is swallowed. The result is cached.
func (b *Backend) ensureTable(ctx context.Context) error {
	b.tableState.mu.Lock()
	defer b.tableState.mu.Unlock()
	if b.tableState.known {
		return nil
	}

	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(b.table),
	})
	switch {
	case err == nil:
		// exists
	case isTableMissing(err):
		if err := b.createTable(ctx); err != nil {
			return err
		}
	default:
		return backend.NewError(backend.TypeDynamo, "ensure_table", "describe table", err)
	}

	if err := b.waitTableActive(ctx); err != nil {
		return err
	}
	if err := b.enableTTL(ctx); err != nil {
		return err
	}

	b.tableState.known = true
	b.tableState.checked = time.Now()
	return nil
}

func (b *Backend) createTable(ctx context.Context) error {
	_, err := b.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(b.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{{
			AttributeName: aws.String("cache_key"),
			AttributeType: types.ScalarAttributeTypeS,
		}},
		KeySchema: []types.KeySchemaElement{{
			AttributeName: aws.String("cache_key"),
			KeyType:       types.KeyTypeHash,
		}},
	})
	if err != nil && !isTableExists(err) {
		return backend.NewError(backend.TypeDynamo, "ensure_table", "create table", err)
	}
	return nil
}

func (b *Backend) waitTableActive(ctx context.Context) error {
	for {
		out, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(b.table),
		})
		if err == nil && out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		if err != nil && !isTableMissing(err) {
			return backend.NewError(backend.TypeDynamo, "ensure_table", "wait for table", err)
		}
		select {
		case <-ctx.Done():
			return backend.NewError(backend.TypeDynamo, "ensure_table", "wait for table", ctx.Err())
		case <-time.After(tableActivePollInterval):
		}
	}
}

// enableTTL turns on the table-level TTL attribute when it is not already on.
func (b *Backend) enableTTL(ctx context.Context) error {
	out, err := b.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(b.table),
	})
	if err == nil && out.TimeToLiveDescription != nil {
		switch out.TimeToLiveDescription.TimeToLiveStatus {
		case types.TimeToLiveStatusEnabled, types.TimeToLiveStatusEnabling:
			return nil
		}
	}
	if _, err := b.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(b.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	}); err != nil {
		return backend.NewError(backend.TypeDynamo, "ensure_table", "enable ttl", err)
	}
	return nil
}

// Repair re-creates a missing table or re-enables TTL, then re-validates the
// result. It drops the cached existence flag so the next write re-checks too.
func (b *Backend) Repair(ctx context.Context) error {
	b.tableState.mu.Lock()
	b.tableState.known = false
	b.tableState.mu.Unlock()

	if err := b.ensureTable(ctx); err != nil {
		return err
	}

	out, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(b.table),
	})
	if err != nil || out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return backend.NewError(backend.TypeDynamo, "repair", "table did not become active", err)
	}
	ttlOut, err := b.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(b.table),
	})
	if err != nil || ttlOut.TimeToLiveDescription == nil {
		return backend.NewError(backend.TypeDynamo, "repair", "describe ttl", err)
	}
	switch ttlOut.TimeToLiveDescription.TimeToLiveStatus {
	case types.TimeToLiveStatusEnabled, types.TimeToLiveStatusEnabling:
		return nil
	}
	return backend.NewError(backend.TypeDynamo, "repair", "ttl not enabled after repair", nil)
}

// SweepOrphanChunks scans chunk items and deletes those whose parent metadata
// item is gone or no longer marked chunked. This is a full-table scan by
// contract; run it as an explicit maintenance call, never on a timer.
func (b *Backend) SweepOrphanChunks(ctx context.Context) (int, error) {
	var (
		orphans []types.WriteRequest
		lastKey map[string]types.AttributeValue
		parents = map[string]bool{} // parent key -> is a live chunked entry
	)
	for {
		out, err := b.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(b.table),
			ProjectionExpression: aws.String("cache_key, is_chunk, parent_key"),
			ExclusiveStartKey:    lastKey,
		})
		if err != nil {
			return 0, backend.NewError(backend.TypeDynamo, "sweep", "scan table", err)
		}
		for _, raw := range out.Items {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				continue
			}
			if !it.IsChunk {
				continue
			}
			live, ok := parents[it.ParentKey]
			if !ok {
				live = b.parentIsChunked(ctx, it.ParentKey)
				parents[it.ParentKey] = live
			}
			if !live {
				orphans = append(orphans, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{Key: pk(it.CacheKey)},
				})
			}
		}
		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			break
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := b.batchWrite(ctx, orphans); err != nil {
		return 0, backend.NewError(backend.TypeDynamo, "sweep", "delete orphan chunks", err)
	}
	b.log.Info("orphan chunk sweep complete", log.Fields{"deleted": len(orphans)})
	return len(orphans), nil
}

func (b *Backend) parentIsChunked(ctx context.Context, parent string) bool {
	if parent == "" {
		return false
	}
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       pk(parent),
	})
	if err != nil {
		// Cannot tell; keep the chunks rather than orphan a live entry.
		b.log.Debug("parent lookup failed during sweep", log.Fields{"parent": secure.Redact(parent)})
		return true
	}
	if out.Item == nil {
		return false
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return false
	}
	return it.IsChunked
}
