package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// MemoryPersistence is an in-memory implementation of IRelayPersistence.
//
// All data is lost when the process exits, so a restarted relayer falls back to
// the node for nonces. Thread-safe using sync.RWMutex; values are deep copied
// on the way in and out.
type MemoryPersistence struct {
	mu sync.RWMutex

	checkpoints map[string]*persistence.NonceCheckpoint
	records     map[string]*persistence.RelayRecord

	closed bool
}

var _ persistence.IRelayPersistence = (*MemoryPersistence)(nil)

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		checkpoints: make(map[string]*persistence.NonceCheckpoint),
		records:     make(map[string]*persistence.RelayRecord),
	}
}

func (m *MemoryPersistence) SaveNonceCheckpoint(cp *persistence.NonceCheckpoint) error {
	if cp == nil {
		return fmt.Errorf("cannot save nil NonceCheckpoint")
	}
	if !common.IsHexAddress(cp.Account) {
		return fmt.Errorf("invalid checkpoint account %q", cp.Account)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	key := persistence.NonceCheckpointKey(cp.ChainID, common.HexToAddress(cp.Account))
	m.checkpoints[key] = cp.Copy()
	return nil
}

func (m *MemoryPersistence) LoadNonceCheckpoint(chainID uint64, account common.Address) (*persistence.NonceCheckpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	cp, ok := m.checkpoints[persistence.NonceCheckpointKey(chainID, account)]
	if !ok {
		return nil, nil // Not found is not an error
	}
	return cp.Copy(), nil
}

func (m *MemoryPersistence) DeleteNonceCheckpoint(chainID uint64, account common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.checkpoints, persistence.NonceCheckpointKey(chainID, account))
	return nil
}

func (m *MemoryPersistence) SaveRelayRecord(record *persistence.RelayRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil RelayRecord")
	}
	if record.ID == "" {
		return fmt.Errorf("cannot save RelayRecord without an ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.records[record.ID] = record.Copy()
	return nil
}

func (m *MemoryPersistence) LoadRelayRecord(id uuid.UUID) (*persistence.RelayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, ok := m.records[id.String()]
	if !ok {
		return nil, nil
	}
	return record.Copy(), nil
}

func (m *MemoryPersistence) ListRelayRecords() ([]*persistence.RelayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.RelayRecord, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, r.Copy())
	}
	persistence.SortRelayRecords(result)
	return result, nil
}

func (m *MemoryPersistence) DeleteRelayRecord(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.records, id.String())
	return nil
}

// Close marks the store closed. Idempotent.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.checkpoints = nil
	m.records = nil
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
