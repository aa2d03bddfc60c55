package persistence

import (
	"fmt"
	"sort"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// NonceCheckpoint is the last known nonce counter for one account on one chain.
type NonceCheckpoint struct {
	ChainID uint64 `json:"chainId"`

	// Account is the hex address the counter belongs to
	Account string `json:"account"`

	// NextNonce is the next never-reserved nonce
	NextNonce uint64 `json:"nextNonce"`

	// Released holds nonces below NextNonce that were handed back and may be reused
	Released []uint64 `json:"released,omitempty"`

	// UpdatedAt is a Unix timestamp in seconds
	UpdatedAt int64 `json:"updatedAt"`
}

// IsFresh reports whether the checkpoint is young enough to be trusted instead
// of asking the node.
func (cp *NonceCheckpoint) IsFresh(ttl time.Duration, now time.Time) bool {
	if cp == nil || ttl <= 0 {
		return false
	}
	return now.Sub(time.Unix(cp.UpdatedAt, 0)) <= ttl
}

func (cp *NonceCheckpoint) Copy() *NonceCheckpoint {
	if cp == nil {
		return nil
	}
	out := *cp
	out.Released = append([]uint64(nil), cp.Released...)
	return &out
}

// NonceCheckpointKey is the storage key suffix shared by every backend.
func NonceCheckpointKey(chainID uint64, account common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, account.Hex())
}

// StateTransition is one entry of a relay record's history.
type StateTransition struct {
	State types.RelayState `json:"state"`
	At    int64            `json:"at"`
	Note  string           `json:"note,omitempty"`
}

// RelayRecord is the persisted view of one relay action.
type RelayRecord struct {
	ID       string `json:"id"`
	Contract string `json:"contract"`
	Method   string `json:"method"`

	State     types.RelayState      `json:"state"`
	Broadcast types.BroadcastStatus `json:"broadcast"`
	TxHash    string                `json:"txHash,omitempty"`
	Nonce     *uint64               `json:"nonce,omitempty"`
	Attempts  int                   `json:"attempts"`

	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`

	BlockNumber uint64 `json:"blockNumber,omitempty"`

	CreatedAt int64             `json:"createdAt"`
	UpdatedAt int64             `json:"updatedAt"`
	History   []StateTransition `json:"history"`
}

func (r *RelayRecord) Copy() *RelayRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Nonce != nil {
		n := *r.Nonce
		out.Nonce = &n
	}
	out.History = append([]StateTransition(nil), r.History...)
	return &out
}

// SortRelayRecords orders records by creation time, then ID.
func SortRelayRecords(records []*RelayRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
}
