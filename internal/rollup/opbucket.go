package rollup

import (
	"context"
	"sync"
	"time"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// BlockTimestampSource fetches a block's Unix timestamp, as the only RPC
// boundary the rollup engine crosses (spec.md §5's "batched RPC
// block-timestamp lookups" suspension point).
type BlockTimestampSource interface {
	BlockTimestamp(ctx context.Context, chainID, blockNumber uint64) (int64, error)
}

// TimestampCache memoizes block timestamps across a rollup run. The rollup
// engine runs single-threaded per spec.md §5's single-writer model, so a
// plain map guarded by a mutex is enough — no sync.Map is needed here
// (see DESIGN.md).
type TimestampCache struct {
	mu    sync.Mutex
	cache map[uint64]map[uint64]int64 // chainID -> blockNumber -> timestamp
	delay time.Duration
	src   BlockTimestampSource
}

// NewTimestampCache returns a cache that spaces uncached fetches by delay.
func NewTimestampCache(src BlockTimestampSource, delay time.Duration) *TimestampCache {
	return &TimestampCache{
		cache: make(map[uint64]map[uint64]int64),
		delay: delay,
		src:   src,
	}
}

// Timestamp returns block's timestamp, fetching and caching it on miss.
func (c *TimestampCache) Timestamp(ctx context.Context, chainID, blockNumber uint64) (int64, error) {
	c.mu.Lock()
	if byBlock, ok := c.cache[chainID]; ok {
		if ts, ok := byBlock[blockNumber]; ok {
			c.mu.Unlock()
			return ts, nil
		}
	}
	c.mu.Unlock()

	ts, err := c.src.BlockTimestamp(ctx, chainID, blockNumber)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.cache[chainID] == nil {
		c.cache[chainID] = make(map[uint64]int64)
	}
	c.cache[chainID][blockNumber] = ts
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return ts, ctx.Err()
		case <-time.After(c.delay):
		}
	}
	return ts, nil
}

// BucketStart computes the floor(timestamp/bucketSeconds)*bucketSeconds
// bucket boundary per spec.md §4.8. bucketSeconds must be > 0.
func BucketStart(timestamp, bucketSeconds int64) int64 {
	return (timestamp / bucketSeconds) * bucketSeconds
}

// AddEvent increments the counter for (bucketStart, eventName) within
// buckets, creating the row on first touch. Counts are additive on
// conflict, matching the upsert semantics of the persisted op-bucket table.
func AddEvent(buckets map[string]*models.OpBucket, chainID uint64, bucketStart, bucketSeconds int64, eventName models.EventName) {
	key := bucketKey(chainID, bucketStart, eventName)
	b, ok := buckets[key]
	if !ok {
		b = &models.OpBucket{ChainID: chainID, BucketStart: bucketStart, BucketSeconds: bucketSeconds, EventName: eventName}
		buckets[key] = b
	}
	b.Count++
}

func bucketKey(chainID uint64, bucketStart int64, eventName models.EventName) string {
	return string(eventName) + "|" + itoa(chainID) + "|" + itoa(uint64(bucketStart))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
