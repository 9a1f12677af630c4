package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arbmath/arb-engine/internal/amm"
	"github.com/arbmath/arb-engine/internal/twap"
)

// Key identifies one pool on one chain for one pair.
type Key struct {
	Chain   uint64
	Address common.Address
	Pair    string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%s", k.Chain, k.Address.Hex(), k.Pair)
}

// Snapshot is the state of a pool as observed at a block.
type Snapshot struct {
	Pool      amm.Pool
	Block     uint64
	Timestamp int64
}

// Registry holds the latest snapshot per pool plus a bounded price history
// per pool for TWAP checks. Callers feed it observed state; it never does
// any fetching itself.
type Registry struct {
	mu        sync.RWMutex
	pools     *lru.Cache[Key, Snapshot]
	histories *lru.Cache[Key, []twap.Sample]
	depth     int
}

// New builds a registry tracking at most maxPools pools, each with a price
// history truncated to depth samples. The least recently touched pool is
// evicted once the bound is hit, history included.
func New(maxPools, depth int) (*Registry, error) {
	if maxPools <= 0 || depth <= 0 {
		return nil, fmt.Errorf("max pools %d and depth %d must be positive: %w", maxPools, depth, amm.ErrInvalidInput)
	}
	histories, err := lru.New[Key, []twap.Sample](maxPools)
	if err != nil {
		return nil, fmt.Errorf("history cache: %w", err)
	}
	pools, err := lru.NewWithEvict[Key, Snapshot](maxPools, func(k Key, _ Snapshot) {
		histories.Remove(k)
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}
	return &Registry{
		pools:     pools,
		histories: histories,
		depth:     depth,
	}, nil
}

// Put records a snapshot. Stale blocks are ignored so replays and
// out-of-order feeds cannot rewind a pool. The pool's spot price, when
// computable, is appended to the pair's history.
func (r *Registry) Put(key Key, snap Snapshot) error {
	if snap.Pool == nil {
		return fmt.Errorf("snapshot for %s has no pool: %w", key, amm.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.pools.Peek(key); ok && snap.Block < prev.Block {
		return nil
	}
	r.pools.Add(key, snap)

	spot, err := snap.Pool.SpotPrice()
	if err != nil {
		// empty pools still get tracked, they just contribute no sample
		return nil
	}
	price, _ := spot.Float64()

	history, _ := r.histories.Get(key)
	history = append(history, twap.Sample{Timestamp: snap.Timestamp, Price: price})
	if len(history) > r.depth {
		history = history[len(history)-r.depth:]
	}
	r.histories.Add(key, history)
	return nil
}

// Get returns the latest snapshot for a pool.
func (r *Registry) Get(key Key) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools.Get(key)
}

// History returns the recorded samples for a pool, oldest first. The slice
// is a copy and safe to retain.
func (r *Registry) History(key Key) []twap.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history, ok := r.histories.Get(key)
	if !ok {
		return nil
	}
	out := make([]twap.Sample, len(history))
	copy(out, history)
	return out
}

// Pair returns every tracked pool quoting the given pair on the given
// chain, ordered by address for determinism.
func (r *Registry) Pair(chain uint64, pair string) []Snapshot {
	keys := r.Keys(chain, pair)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		if snap, ok := r.pools.Peek(k); ok {
			out = append(out, snap)
		}
	}
	return out
}

// Keys returns the keys of every tracked pool quoting the given pair on
// the given chain, ordered by address.
func (r *Registry) Keys(chain uint64, pair string) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []Key
	for _, k := range r.pools.Keys() {
		if k.Chain == chain && k.Pair == pair {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Address.Hex() < keys[j].Address.Hex()
	})
	return keys
}

// Len reports how many pools are tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools.Len()
}
