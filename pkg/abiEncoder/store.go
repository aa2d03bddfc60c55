package abiEncoder

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/ethereum/go-ethereum/common"
)

// ContractStore is the registry of known bindings, filled at startup and read
// concurrently afterwards.
type ContractStore struct {
	mu        sync.RWMutex
	byName    map[string]*ContractBinding
	byAddress map[common.Address]*ContractBinding
}

func NewContractStore() *ContractStore {
	return &ContractStore{
		byName:    make(map[string]*ContractBinding),
		byAddress: make(map[common.Address]*ContractBinding),
	}
}

// LoadContractStore loads every configured contract entry.
func LoadContractStore(entries []*config.ContractEntry) (*ContractStore, error) {
	store := NewContractStore()
	for _, entry := range entries {
		b, err := LoadContractBindingFromFile(entry.Name, entry.Address, entry.AbiPath)
		if err != nil {
			return nil, err
		}
		if err := store.Add(b); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *ContractStore) Add(b *ContractBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[b.Name]; ok {
		return fmt.Errorf("contract %q already registered", b.Name)
	}
	if existing, ok := s.byAddress[b.Address]; ok {
		return fmt.Errorf("address %s already registered as %q", b.Address.Hex(), existing.Name)
	}
	s.byName[b.Name] = b
	s.byAddress[b.Address] = b
	return nil
}

func (s *ContractStore) ByName(name string) (*ContractBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byName[name]
	return b, ok
}

func (s *ContractStore) ByAddress(addr common.Address) (*ContractBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byAddress[addr]
	return b, ok
}

// Resolve accepts either a registered name or a hex address.
func (s *ContractStore) Resolve(nameOrAddress string) (*ContractBinding, error) {
	if b, ok := s.ByName(nameOrAddress); ok {
		return b, nil
	}
	if common.IsHexAddress(nameOrAddress) {
		if b, ok := s.ByAddress(common.HexToAddress(nameOrAddress)); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown contract %q", nameOrAddress)
}

func (s *ContractStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}
