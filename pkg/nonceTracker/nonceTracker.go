// Package nonceTracker owns the chain context of the relayer's account: the
// chain id and the next nonce. It is the single serialization point between
// concurrent relay actions.
package nonceTracker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrPayloadConflict = errors.New("nonce is already bound to a different payload")
	ErrNotReserved     = errors.New("nonce is not reserved")
)

// INodeQuerier is the part of the node client the tracker depends on.
type INodeQuerier interface {
	QueryChainID(ctx context.Context) (*big.Int, error)
	QueryAccountNonce(ctx context.Context, account common.Address, pending bool) (uint64, error)
}

type accountState struct {
	next     uint64
	released map[uint64]struct{}
	// live reservations and the payload digest each one was signed with
	live map[uint64]common.Hash
}

func newAccountState(next uint64) *accountState {
	return &accountState{
		next:     next,
		released: make(map[uint64]struct{}),
		live:     make(map[uint64]common.Hash),
	}
}

func (s *accountState) lowestReleased() (uint64, bool) {
	if len(s.released) == 0 {
		return 0, false
	}
	first := true
	var lowest uint64
	for n := range s.released {
		if first || n < lowest {
			lowest = n
			first = false
		}
	}
	return lowest, true
}

func (s *accountState) releasedSorted() []uint64 {
	out := make([]uint64, 0, len(s.released))
	for n := range s.released {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type NonceTracker struct {
	mu sync.Mutex

	node   INodeQuerier
	store  persistence.IRelayPersistence
	policy config.NoncePolicy
	logger *zap.Logger
	now    func() time.Time

	chainID          *big.Int
	chainIDFetchedAt time.Time
	accounts         map[common.Address]*accountState
}

// NewNonceTracker creates a tracker. store may be nil, in which case nonces are
// always seeded from the node.
func NewNonceTracker(node INodeQuerier, store persistence.IRelayPersistence, policy config.NoncePolicy, logger *zap.Logger) *NonceTracker {
	return &NonceTracker{
		node:     node,
		store:    store,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
		accounts: make(map[common.Address]*accountState),
	}
}

// ChainID returns the cached chain id, refreshing it from the node when the
// refresh interval has passed.
func (nt *NonceTracker) ChainID(ctx context.Context) (*big.Int, error) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	chainID, err := nt.chainIDLocked(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(chainID), nil
}

func (nt *NonceTracker) chainIDLocked(ctx context.Context) (*big.Int, error) {
	if nt.chainID != nil {
		if nt.policy.ChainIDRefreshInterval <= 0 || nt.now().Sub(nt.chainIDFetchedAt) < nt.policy.ChainIDRefreshInterval {
			return nt.chainID, nil
		}
	}

	chainID, err := nt.node.QueryChainID(ctx)
	if err != nil {
		return nil, relayErrors.ContextUnavailable("chain id", err)
	}

	if nt.chainID != nil && nt.chainID.Cmp(chainID) != 0 {
		nt.logger.Sugar().Warnw("Node reports a different chain id, resetting nonce state",
			"previous", nt.chainID.String(),
			"current", chainID.String(),
		)
		nt.accounts = make(map[common.Address]*accountState)
	}
	nt.chainID = chainID
	nt.chainIDFetchedAt = nt.now()
	return nt.chainID, nil
}

// seedLocked initialises an account from a fresh checkpoint or from the node.
func (nt *NonceTracker) seedLocked(ctx context.Context, chainID *big.Int, account common.Address) (*accountState, error) {
	if st, ok := nt.accounts[account]; ok {
		return st, nil
	}

	if nt.store != nil {
		cp, err := nt.store.LoadNonceCheckpoint(chainID.Uint64(), account)
		if err != nil {
			nt.logger.Sugar().Warnw("Failed to load nonce checkpoint, asking the node", "account", account.Hex(), "error", err)
		} else if cp.IsFresh(nt.policy.CacheTTL, nt.now()) {
			st := newAccountState(cp.NextNonce)
			for _, n := range cp.Released {
				if n < cp.NextNonce {
					st.released[n] = struct{}{}
				}
			}
			nt.accounts[account] = st
			nt.logger.Sugar().Infow("Seeded nonce from checkpoint", "account", account.Hex(), "nextNonce", cp.NextNonce)
			return st, nil
		}
	}

	pending := nt.policy.Source == config.NonceSource_Pending
	next, err := nt.node.QueryAccountNonce(ctx, account, pending)
	if err != nil {
		return nil, relayErrors.ContextUnavailable("account nonce", err)
	}
	st := newAccountState(next)
	nt.accounts[account] = st
	nt.logger.Sugar().Infow("Seeded nonce from node", "account", account.Hex(), "nextNonce", next, "source", nt.policy.Source)
	return st, nil
}

func (nt *NonceTracker) checkpointLocked(account common.Address, st *accountState) {
	if nt.store == nil || nt.chainID == nil {
		return
	}
	cp := &persistence.NonceCheckpoint{
		ChainID:   nt.chainID.Uint64(),
		Account:   account.Hex(),
		NextNonce: st.next,
		Released:  st.releasedSorted(),
		UpdatedAt: nt.now().Unix(),
	}
	if err := nt.store.SaveNonceCheckpoint(cp); err != nil {
		nt.logger.Sugar().Warnw("Failed to save nonce checkpoint", "account", account.Hex(), "error", err)
	}
}

// ReserveNonce hands out the lowest released nonce, or the next fresh one.
// Concurrent callers never receive the same value.
func (nt *NonceTracker) ReserveNonce(ctx context.Context, account common.Address) (uint64, error) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	chainID, err := nt.chainIDLocked(ctx)
	if err != nil {
		return 0, err
	}
	st, err := nt.seedLocked(ctx, chainID, account)
	if err != nil {
		return 0, err
	}

	nonce, ok := st.lowestReleased()
	if ok {
		delete(st.released, nonce)
	} else {
		nonce = st.next
		st.next++
	}
	st.live[nonce] = common.Hash{}
	nt.checkpointLocked(account, st)

	nt.logger.Debug("Reserved nonce", zap.String("account", account.Hex()), zap.Uint64("nonce", nonce), zap.Bool("reused", ok))
	return nonce, nil
}

// ReleaseOnFailure returns a nonce the node never accepted.
func (nt *NonceTracker) ReleaseOnFailure(account common.Address, nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	st, ok := nt.accounts[account]
	if !ok {
		return
	}
	if _, live := st.live[nonce]; !live {
		nt.logger.Sugar().Warnw("Release of a nonce that is not reserved", "account", account.Hex(), "nonce", nonce)
		return
	}
	delete(st.live, nonce)

	if nonce+1 == st.next {
		st.next--
		// collapse released nonces now sitting on top of the counter
		for st.next > 0 {
			if _, ok := st.released[st.next-1]; !ok {
				break
			}
			delete(st.released, st.next-1)
			st.next--
		}
	} else {
		st.released[nonce] = struct{}{}
	}
	nt.checkpointLocked(account, st)

	nt.logger.Debug("Released nonce", zap.String("account", account.Hex()), zap.Uint64("nonce", nonce))
}

// Discard records that the node reported nonce as already used. The counter is
// raised past it and never lowered.
func (nt *NonceTracker) Discard(account common.Address, nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	st, ok := nt.accounts[account]
	if !ok {
		return
	}
	delete(st.live, nonce)
	for n := range st.released {
		if n <= nonce {
			delete(st.released, n)
		}
	}
	if st.next < nonce+1 {
		st.next = nonce + 1
	}
	nt.checkpointLocked(account, st)

	nt.logger.Sugar().Infow("Discarded stale nonce", "account", account.Hex(), "nonce", nonce, "nextNonce", st.next)
}

// Confirm drops the bookkeeping of a reservation that reached the network.
func (nt *NonceTracker) Confirm(account common.Address, nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if st, ok := nt.accounts[account]; ok {
		delete(st.live, nonce)
	}
}

// BindPayload records the digest signed under a live nonce. Re-binding the same
// digest is allowed, so fee-only resigns pass; a different digest is refused.
func (nt *NonceTracker) BindPayload(account common.Address, nonce uint64, payload common.Hash) error {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	st, ok := nt.accounts[account]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotReserved, nonce)
	}
	bound, live := st.live[nonce]
	if !live {
		return fmt.Errorf("%w: %d", ErrNotReserved, nonce)
	}
	if bound != (common.Hash{}) && bound != payload {
		return fmt.Errorf("%w: nonce %d", ErrPayloadConflict, nonce)
	}
	st.live[nonce] = payload
	return nil
}

// Context returns a snapshot of the chain context for account.
func (nt *NonceTracker) Context(account common.Address) (*types.ChainContext, bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	st, ok := nt.accounts[account]
	if !ok || nt.chainID == nil {
		return nil, false
	}
	return &types.ChainContext{
		ChainID:   new(big.Int).Set(nt.chainID),
		NextNonce: st.next,
	}, true
}

// Reset forgets everything known about account; the next reservation re-seeds.
func (nt *NonceTracker) Reset(account common.Address) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	delete(nt.accounts, account)
	if nt.store != nil && nt.chainID != nil {
		if err := nt.store.DeleteNonceCheckpoint(nt.chainID.Uint64(), account); err != nil {
			nt.logger.Sugar().Warnw("Failed to delete nonce checkpoint", "account", account.Hex(), "error", err)
		}
	}
}
