package nonceTracker

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence/memory"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var account = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type fakeNode struct {
	mu           sync.Mutex
	chainID      int64
	latest       uint64
	pending      uint64
	err          error
	nonceQueries int
	chainQueries int
}

func (f *fakeNode) QueryChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainQueries++
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.chainID), nil
}

func (f *fakeNode) QueryAccountNonce(_ context.Context, _ common.Address, pending bool) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceQueries++
	if f.err != nil {
		return 0, f.err
	}
	if pending {
		return f.pending, nil
	}
	return f.latest, nil
}

func newTracker(t *testing.T, node *fakeNode, store persistence.IRelayPersistence) *NonceTracker {
	t.Helper()
	return NewNonceTracker(node, store, config.DefaultRelayPolicy().Nonce, zaptest.NewLogger(t))
}

func reserve(t *testing.T, nt *NonceTracker) uint64 {
	t.Helper()
	n, err := nt.ReserveNonce(context.Background(), account)
	require.NoError(t, err)
	return n
}

func Test_ReserveNonce_Seeding(t *testing.T) {
	t.Run("Should seed from the confirmed count by default", func(t *testing.T) {
		node := &fakeNode{chainID: 31337, latest: 5, pending: 9}
		nt := newTracker(t, node, nil)
		assert.Equal(t, uint64(5), reserve(t, nt))
		assert.Equal(t, uint64(6), reserve(t, nt))
		assert.Equal(t, 1, node.nonceQueries)
	})

	t.Run("Should seed from the pending count when configured", func(t *testing.T) {
		node := &fakeNode{chainID: 31337, latest: 5, pending: 9}
		policy := config.DefaultRelayPolicy().Nonce
		policy.Source = config.NonceSource_Pending
		nt := NewNonceTracker(node, nil, policy, zaptest.NewLogger(t))
		assert.Equal(t, uint64(9), reserve(t, nt))
	})

	t.Run("Should report node failures as ContextUnavailable", func(t *testing.T) {
		node := &fakeNode{chainID: 31337, err: errors.New("connection refused")}
		nt := newTracker(t, node, nil)
		_, err := nt.ReserveNonce(context.Background(), account)
		require.Error(t, err)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindContextUnavailable))

		_, err = nt.ChainID(context.Background())
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindContextUnavailable))
	})
}

func Test_ReserveNonce_Concurrent(t *testing.T) {
	node := &fakeNode{chainID: 31337, latest: 100}
	nt := newTracker(t, node, nil)

	const workers = 64
	results := make([]uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := nt.ReserveNonce(context.Background(), account)
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, n := range results {
		assert.Equal(t, uint64(100+i), n, "reservations must be distinct and gap free")
	}
	assert.Equal(t, 1, node.nonceQueries)

	ctxSnap, ok := nt.Context(account)
	require.True(t, ok)
	assert.Equal(t, uint64(100+workers), ctxSnap.NextNonce)
	assert.Equal(t, big.NewInt(31337), ctxSnap.ChainID)
}

func Test_ReserveNonce_StrictlyIncreasing(t *testing.T) {
	nt := newTracker(t, &fakeNode{chainID: 1}, nil)
	prev := reserve(t, nt)
	for i := 0; i < 10; i++ {
		n := reserve(t, nt)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func Test_ReleaseOnFailure(t *testing.T) {
	t.Run("Should step the counter back when the top reservation is released", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1, latest: 3}, nil)
		n := reserve(t, nt)
		nt.ReleaseOnFailure(account, n)
		assert.Equal(t, n, reserve(t, nt))
	})

	t.Run("Should reuse released nonces lowest first", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1}, nil)
		n0, n1, n2, n3 := reserve(t, nt), reserve(t, nt), reserve(t, nt), reserve(t, nt)
		require.Equal(t, []uint64{0, 1, 2, 3}, []uint64{n0, n1, n2, n3})

		nt.ReleaseOnFailure(account, n2)
		nt.ReleaseOnFailure(account, n1)
		assert.Equal(t, uint64(1), reserve(t, nt))
		assert.Equal(t, uint64(2), reserve(t, nt))
		assert.Equal(t, uint64(4), reserve(t, nt))
	})

	t.Run("Should collapse released nonces under a released top", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1}, nil)
		_, n1, n2 := reserve(t, nt), reserve(t, nt), reserve(t, nt)
		nt.ReleaseOnFailure(account, n1)
		nt.ReleaseOnFailure(account, n2)

		snap, _ := nt.Context(account)
		assert.Equal(t, uint64(1), snap.NextNonce)
	})

	t.Run("Should ignore releases of unreserved nonces", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1}, nil)
		n := reserve(t, nt)
		nt.ReleaseOnFailure(account, n+5)
		nt.ReleaseOnFailure(common.HexToAddress("0x02"), 0)
		assert.Equal(t, n+1, reserve(t, nt))
	})
}

func Test_Discard(t *testing.T) {
	t.Run("Should hand out first+1 after a nonce-too-low", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1, latest: 7}, nil)
		first := reserve(t, nt)
		nt.Discard(account, first)
		assert.Equal(t, first+1, reserve(t, nt))
	})

	t.Run("Should never lower the counter", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1, latest: 10}, nil)
		for i := 0; i < 5; i++ {
			reserve(t, nt)
		}
		nt.Discard(account, 2)
		snap, _ := nt.Context(account)
		assert.Equal(t, uint64(15), snap.NextNonce)
	})

	t.Run("Should drop released nonces at or below the discarded one", func(t *testing.T) {
		nt := newTracker(t, &fakeNode{chainID: 1}, nil)
		n0, n1, n2, _ := reserve(t, nt), reserve(t, nt), reserve(t, nt), reserve(t, nt)
		nt.ReleaseOnFailure(account, n0)
		nt.ReleaseOnFailure(account, n2)
		nt.Discard(account, n1)
		assert.Equal(t, n2, reserve(t, nt))
		assert.Equal(t, uint64(4), reserve(t, nt))
	})
}

func Test_BindPayload(t *testing.T) {
	nt := newTracker(t, &fakeNode{chainID: 1}, nil)
	n := reserve(t, nt)

	payload := common.HexToHash("0xaaaa")
	require.NoError(t, nt.BindPayload(account, n, payload))
	require.NoError(t, nt.BindPayload(account, n, payload), "fee-only resign keeps the digest")

	err := nt.BindPayload(account, n, common.HexToHash("0xbbbb"))
	require.ErrorIs(t, err, ErrPayloadConflict)

	require.ErrorIs(t, nt.BindPayload(account, n+1, payload), ErrNotReserved)

	nt.Confirm(account, n)
	require.ErrorIs(t, nt.BindPayload(account, n, payload), ErrNotReserved)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func Test_ChainID_Refresh(t *testing.T) {
	node := &fakeNode{chainID: 1, latest: 40}
	nt := newTracker(t, node, nil)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	nt.now = clock.now

	id, err := nt.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), id)
	reserve(t, nt)
	assert.Equal(t, 1, node.chainQueries)

	clock.t = clock.t.Add(time.Minute)
	reserve(t, nt)
	assert.Equal(t, 1, node.chainQueries, "cached within the refresh interval")

	node.mu.Lock()
	node.chainID = 5
	node.latest = 0
	node.mu.Unlock()
	clock.t = clock.t.Add(config.DefaultRelayPolicy().Nonce.ChainIDRefreshInterval)

	assert.Equal(t, uint64(0), reserve(t, nt), "nonce state is scoped per chain id")
	assert.Equal(t, 2, node.chainQueries)
}

func Test_Checkpoints(t *testing.T) {
	store := memory.NewMemoryPersistence()
	defer func() { _ = store.Close() }()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	node := &fakeNode{chainID: 31337, latest: 3}
	nt := newTracker(t, node, store)
	nt.now = clock.now
	reserve(t, nt)
	n := reserve(t, nt)
	nt.ReleaseOnFailure(account, n-1)

	cp, err := store.LoadNonceCheckpoint(31337, account)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(5), cp.NextNonce)
	assert.Equal(t, []uint64{3}, cp.Released)

	t.Run("Should seed a restarted tracker from a fresh checkpoint", func(t *testing.T) {
		restartedNode := &fakeNode{chainID: 31337, latest: 3}
		restarted := newTracker(t, restartedNode, store)
		restarted.now = clock.now
		assert.Equal(t, uint64(3), reserve(t, restarted))
		assert.Equal(t, uint64(5), reserve(t, restarted))
		assert.Equal(t, 0, restartedNode.nonceQueries)
	})

	t.Run("Should ignore a stale checkpoint", func(t *testing.T) {
		staleNode := &fakeNode{chainID: 31337, latest: 20}
		stale := newTracker(t, staleNode, store)
		later := &fakeClock{t: clock.t.Add(time.Hour)}
		stale.now = later.now
		assert.Equal(t, uint64(20), reserve(t, stale))
		assert.Equal(t, 1, staleNode.nonceQueries)
	})

	t.Run("Should delete the checkpoint on reset", func(t *testing.T) {
		nt.Reset(account)
		cp, err := store.LoadNonceCheckpoint(31337, account)
		require.NoError(t, err)
		assert.Nil(t, cp)
		_, ok := nt.Context(account)
		assert.False(t, ok)
	})
}
