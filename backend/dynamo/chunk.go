package dynamo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const (
	batchWriteMax = 25
	batchGetMax   = 100
)

// writeChunks splits an oversized (already compressed) payload across chunk
// items plus one metadata item, all written in batches. The chunk id ties the
// chunk items to this write so a concurrent overwrite cannot interleave.
func (b *Backend) writeChunks(ctx context.Context, base item, data []byte) error {
	chunkID, err := newChunkID()
	if err != nil {
		return backend.NewError(backend.TypeDynamo, "set", "generate chunk id", err)
	}

	count := (len(data) + chunkSize - 1) / chunkSize
	reqs := make([]types.WriteRequest, 0, count+1)
	for i := 0; i < count; i++ {
		end := (i + 1) * chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := item{
			CacheKey:   chunkKey(base.CacheKey, chunkID, i),
			Data:       data[i*chunkSize : end],
			CreatedAt:  base.CreatedAt,
			TTL:        base.TTL,
			IsChunk:    true,
			ChunkIndex: i,
			ParentKey:  base.CacheKey,
		}
		av, err := attributevalue.MarshalMap(chunk)
		if err != nil {
			return backend.NewError(backend.TypeDynamo, "set", "marshal chunk", err)
		}
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	meta := base
	meta.Data = nil
	meta.IsChunked = true
	meta.ChunkID = chunkID
	meta.ChunkCount = count
	mav, err := attributevalue.MarshalMap(meta)
	if err != nil {
		return backend.NewError(backend.TypeDynamo, "set", "marshal chunk metadata", err)
	}
	reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: mav}})

	if err := b.batchWrite(ctx, reqs); err != nil {
		return backend.NewError(backend.TypeDynamo, "set", "batch write chunks", err)
	}
	return nil
}

// readChunks reassembles a chunked payload. Any missing chunk makes the whole
// entry a miss; reassembly requires exactly ChunkCount chunks.
func (b *Backend) readChunks(ctx context.Context, key string, meta item) ([]byte, error) {
	if meta.ChunkCount <= 0 || meta.ChunkID == "" {
		return nil, nil
	}

	keys := make([]map[string]types.AttributeValue, 0, meta.ChunkCount)
	for i := 0; i < meta.ChunkCount; i++ {
		keys = append(keys, pk(chunkKey(key, meta.ChunkID, i)))
	}

	chunks := make([]item, 0, meta.ChunkCount)
	for start := 0; start < len(keys); start += batchGetMax {
		end := start + batchGetMax
		if end > len(keys) {
			end = len(keys)
		}
		got, err := b.batchGet(ctx, keys[start:end])
		if err != nil {
			if isThrottle(err) {
				b.log.Warn("chunk read throttled", log.Fields{"key": secure.Redact(key)})
				return nil, nil
			}
			return nil, backend.NewError(backend.TypeDynamo, "get", "batch get chunks", err)
		}
		chunks = append(chunks, got...)
	}

	if len(chunks) != meta.ChunkCount {
		b.log.Warn("incomplete chunk set treated as miss", log.Fields{
			"key": secure.Redact(key), "want": meta.ChunkCount, "got": len(chunks),
		})
		return nil, nil
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	var out []byte
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out, nil
}

// deleteChunks removes the chunk items belonging to a chunked entry.
func (b *Backend) deleteChunks(ctx context.Context, key string, meta item) error {
	if meta.ChunkCount <= 0 || meta.ChunkID == "" {
		return nil
	}
	reqs := make([]types.WriteRequest, 0, meta.ChunkCount)
	for i := 0; i < meta.ChunkCount; i++ {
		reqs = append(reqs, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: pk(chunkKey(key, meta.ChunkID, i))},
		})
	}
	return b.batchWrite(ctx, reqs)
}

// batchWrite pushes write requests in batches of 25, retrying unprocessed
// items a bounded number of times.
func (b *Backend) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	for start := 0; start < len(reqs); start += batchWriteMax {
		end := start + batchWriteMax
		if end > len(reqs) {
			end = len(reqs)
		}
		pending := reqs[start:end]
		for attempt := 0; len(pending) > 0; attempt++ {
			out, err := b.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{b.table: pending},
			})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems[b.table]
			if len(pending) > 0 && attempt >= 3 {
				return backend.NewError(backend.TypeDynamo, "batch_write", "unprocessed items after retries", nil)
			}
		}
	}
	return nil
}

// batchGet reads up to 100 items, retrying unprocessed keys a bounded number
// of times. Items the store never returns are simply absent from the result.
func (b *Backend) batchGet(ctx context.Context, keys []map[string]types.AttributeValue) ([]item, error) {
	var items []item
	pending := types.KeysAndAttributes{Keys: keys, ConsistentRead: aws.Bool(false)}
	for attempt := 0; len(pending.Keys) > 0; attempt++ {
		out, err := b.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{b.table: pending},
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range out.Responses[b.table] {
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				continue
			}
			items = append(items, it)
		}
		up, ok := out.UnprocessedKeys[b.table]
		if !ok || len(up.Keys) == 0 {
			break
		}
		if attempt >= 3 {
			break // remaining keys count as missing chunks
		}
		pending = up
	}
	return items, nil
}

func newChunkID() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}
