package persistence

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// IRelayPersistence persists relayer state across restarts.
// All implementations must be thread-safe; relays run concurrently.
//
// The interface supports:
// - Nonce checkpoints per (chain id, account), so a restart can skip the node round trip
// - Relay records, the audit trail of every relay action and its transitions
// - Lifecycle management (close, health check)
type IRelayPersistence interface {
	// SaveNonceCheckpoint overwrites the checkpoint for cp.ChainID and cp.Account.
	SaveNonceCheckpoint(cp *NonceCheckpoint) error

	// LoadNonceCheckpoint returns nil if no checkpoint exists, error only on storage failure.
	LoadNonceCheckpoint(chainID uint64, account common.Address) (*NonceCheckpoint, error)

	// DeleteNonceCheckpoint is idempotent.
	DeleteNonceCheckpoint(chainID uint64, account common.Address) error

	// SaveRelayRecord inserts or overwrites the record with the same ID.
	SaveRelayRecord(record *RelayRecord) error

	// LoadRelayRecord returns nil if the record doesn't exist, error only on storage failure.
	LoadRelayRecord(id uuid.UUID) (*RelayRecord, error)

	// ListRelayRecords returns all records sorted by creation time (ascending).
	ListRelayRecords() ([]*RelayRecord, error)

	// DeleteRelayRecord is idempotent.
	DeleteRelayRecord(id uuid.UUID) error

	// Close is idempotent. After Close(), all other operations return errors.
	Close() error

	// HealthCheck returns nil if the storage is reachable and initialised.
	HealthCheck() error
}
