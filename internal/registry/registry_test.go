package registry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbmath/arb-engine/internal/amm"
	"github.com/arbmath/arb-engine/internal/twap"
)

func poolKey(addr string) Key {
	return Key{Chain: 1, Address: common.HexToAddress(addr), Pair: "WETH/USDC"}
}

func cp(in, out int64) *amm.ConstantProductPool {
	return &amm.ConstantProductPool{
		ReserveIn:  big.NewInt(in),
		ReserveOut: big.NewInt(out),
	}
}

func TestPutAndGet(t *testing.T) {
	r, err := New(16, 8)
	require.NoError(t, err)

	key := poolKey("0x01")
	require.NoError(t, r.Put(key, Snapshot{Pool: cp(1000, 2000), Block: 100, Timestamp: 10}))

	snap, ok := r.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint64(100), snap.Block)
	assert.Equal(t, 1, r.Len())

	_, ok = r.Get(poolKey("0x02"))
	assert.False(t, ok)
}

func TestPutIgnoresStaleBlock(t *testing.T) {
	r, err := New(16, 8)
	require.NoError(t, err)

	key := poolKey("0x01")
	require.NoError(t, r.Put(key, Snapshot{Pool: cp(1000, 2000), Block: 100, Timestamp: 10}))
	require.NoError(t, r.Put(key, Snapshot{Pool: cp(5, 5), Block: 99, Timestamp: 9}))

	snap, _ := r.Get(key)
	assert.Equal(t, uint64(100), snap.Block)
	assert.Equal(t, big.NewInt(1000), snap.Pool.InReserve())
}

func TestHistoryAccumulatesAndTruncates(t *testing.T) {
	r, err := New(16, 3)
	require.NoError(t, err)

	key := poolKey("0x01")
	for i := int64(0); i < 5; i++ {
		pool := cp(1000, 2000+100*i)
		require.NoError(t, r.Put(key, Snapshot{Pool: pool, Block: uint64(100 + i), Timestamp: 10 * i}))
	}

	history := r.History(key)
	require.Len(t, history, 3)
	// oldest two samples fell off the window
	assert.Equal(t, int64(20), history[0].Timestamp)
	assert.Equal(t, int64(40), history[2].Timestamp)
	assert.InDelta(t, 2.4, history[2].Price, 1e-9)

	// history feeds straight into the averaging code
	_, err = twap.TWAP(history)
	assert.NoError(t, err)
}

func TestHistoryReturnsCopy(t *testing.T) {
	r, err := New(16, 8)
	require.NoError(t, err)

	key := poolKey("0x01")
	require.NoError(t, r.Put(key, Snapshot{Pool: cp(1000, 2000), Block: 1, Timestamp: 1}))

	history := r.History(key)
	require.Len(t, history, 1)
	history[0].Price = 999

	assert.InDelta(t, 2.0, r.History(key)[0].Price, 1e-9)
}

func TestPairListingIsDeterministic(t *testing.T) {
	r, err := New(16, 8)
	require.NoError(t, err)

	require.NoError(t, r.Put(poolKey("0xBB"), Snapshot{Pool: cp(1, 1), Block: 1}))
	require.NoError(t, r.Put(poolKey("0xAA"), Snapshot{Pool: cp(2, 2), Block: 1}))
	require.NoError(t, r.Put(Key{Chain: 1, Address: common.HexToAddress("0xCC"), Pair: "WETH/USDT"},
		Snapshot{Pool: cp(3, 3), Block: 1}))

	snaps := r.Pair(1, "WETH/USDC")
	require.Len(t, snaps, 2)
	assert.Equal(t, big.NewInt(2), snaps[0].Pool.InReserve())
	assert.Equal(t, big.NewInt(1), snaps[1].Pool.InReserve())

	assert.Empty(t, r.Pair(5, "WETH/USDC"))
}

func TestPutRejectsNilPool(t *testing.T) {
	r, err := New(16, 8)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Put(poolKey("0x01"), Snapshot{Block: 1}), amm.ErrInvalidInput)
}

func TestNewValidation(t *testing.T) {
	_, err := New(0, 8)
	assert.ErrorIs(t, err, amm.ErrInvalidInput)
	_, err = New(16, 0)
	assert.ErrorIs(t, err, amm.ErrInvalidInput)
}

// The pool bound applies to snapshots, not just histories: the least
// recently touched pool falls out entirely once capacity is hit.
func TestCapacityEvictsOldestPool(t *testing.T) {
	r, err := New(2, 8)
	require.NoError(t, err)

	require.NoError(t, r.Put(poolKey("0x01"), Snapshot{Pool: cp(1, 1), Block: 1, Timestamp: 1}))
	require.NoError(t, r.Put(poolKey("0x02"), Snapshot{Pool: cp(2, 2), Block: 1, Timestamp: 1}))
	require.NoError(t, r.Put(poolKey("0x03"), Snapshot{Pool: cp(3, 3), Block: 1, Timestamp: 1}))

	assert.Equal(t, 2, r.Len())
	_, ok := r.Get(poolKey("0x01"))
	assert.False(t, ok)
	assert.Empty(t, r.History(poolKey("0x01")))

	_, ok = r.Get(poolKey("0x03"))
	assert.True(t, ok)
	assert.Len(t, r.Keys(1, "WETH/USDC"), 2)
}

func TestEmptyPoolContributesNoSample(t *testing.T) {
	r, err := New(16, 8)
	require.NoError(t, err)

	key := poolKey("0x01")
	require.NoError(t, r.Put(key, Snapshot{Pool: cp(0, 0), Block: 1, Timestamp: 1}))

	_, ok := r.Get(key)
	assert.True(t, ok)
	assert.Empty(t, r.History(key))
}
