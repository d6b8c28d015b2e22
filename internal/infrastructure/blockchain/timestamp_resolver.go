package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/infrastructure/config"

	"golang.org/x/sync/singleflight"
)

// TimestampResolver maps a block number to its unix timestamp
type TimestampResolver interface {
	BlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error)
}

// BlockTimestampCache is an unbounded block number -> timestamp map. Block
// timestamps never change, so entries are valid for the process lifetime.
type BlockTimestampCache struct {
	mu      sync.RWMutex
	entries map[uint64]int64
}

// NewBlockTimestampCache creates an empty cache
func NewBlockTimestampCache() *BlockTimestampCache {
	return &BlockTimestampCache{entries: make(map[uint64]int64)}
}

// Get returns the cached timestamp of a block
func (c *BlockTimestampCache) Get(blockNumber uint64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.entries[blockNumber]
	return ts, ok
}

// Put stores the timestamp of a block
func (c *BlockTimestampCache) Put(blockNumber uint64, timestamp int64) {
	c.mu.Lock()
	c.entries[blockNumber] = timestamp
	c.mu.Unlock()
}

// Len returns the number of cached blocks
func (c *BlockTimestampCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ExactTimestampResolver reads block headers and caches their timestamps
type ExactTimestampResolver struct {
	headers HeaderReader
	cache   *BlockTimestampCache
	group   singleflight.Group
}

// NewExactTimestampResolver creates a resolver backed by header lookups
func NewExactTimestampResolver(headers HeaderReader, cache *BlockTimestampCache) *ExactTimestampResolver {
	return &ExactTimestampResolver{headers: headers, cache: cache}
}

// BlockTimestamp returns the exact timestamp of the block
func (r *ExactTimestampResolver) BlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error) {
	if ts, ok := r.cache.Get(blockNumber); ok {
		return ts, nil
	}

	v, err, _ := r.group.Do(strconv.FormatUint(blockNumber, 10), func() (interface{}, error) {
		if ts, ok := r.cache.Get(blockNumber); ok {
			return ts, nil
		}
		header, err := r.headers.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		if err != nil {
			return nil, fmt.Errorf("%w: header of block %d: %w", entity.ErrRPC, blockNumber, err)
		}
		if header == nil {
			return nil, fmt.Errorf("%w: block %d not found", entity.ErrRPC, blockNumber)
		}
		ts := int64(header.Time)
		r.cache.Put(blockNumber, ts)
		return ts, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// ExtrapolatedTimestampResolver estimates block times from one calibration
// point and a constant block time. It issues no RPC calls, and its error grows
// with the distance from the calibration block whenever the real block time drifts.
type ExtrapolatedTimestampResolver struct {
	baseBlock     uint64
	baseTimestamp int64
	blockTime     time.Duration
}

// NewExtrapolatedTimestampResolver creates an approximate resolver
func NewExtrapolatedTimestampResolver(baseBlock uint64, baseTimestamp int64, blockTime time.Duration) *ExtrapolatedTimestampResolver {
	return &ExtrapolatedTimestampResolver{
		baseBlock:     baseBlock,
		baseTimestamp: baseTimestamp,
		blockTime:     blockTime,
	}
}

// BlockTimestamp returns the extrapolated timestamp of the block
func (r *ExtrapolatedTimestampResolver) BlockTimestamp(_ context.Context, blockNumber uint64) (int64, error) {
	delta := int64(blockNumber) - int64(r.baseBlock)
	offset := time.Duration(delta) * r.blockTime
	return r.baseTimestamp + int64(offset/time.Second), nil
}

// NewTimestampResolver selects the resolver configured by ethereum.timestamp_strategy
func NewTimestampResolver(cfg *config.EthereumConfig, headers HeaderReader, cache *BlockTimestampCache) (TimestampResolver, error) {
	switch cfg.TimestampStrategy {
	case config.TimestampStrategyExact:
		return NewExactTimestampResolver(headers, cache), nil
	case config.TimestampStrategyExtrapolate:
		return NewExtrapolatedTimestampResolver(cfg.BaseBlock, cfg.BaseTimestamp, cfg.BlockTime), nil
	}
	return nil, fmt.Errorf("unknown timestamp strategy %q", cfg.TimestampStrategy)
}
