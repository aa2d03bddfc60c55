package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixNonce       = "nonce:"
	keyPrefixRelay       = "relay:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "relayer-v1"
)

// BadgerPersistence is a disk-backed persistence implementation using Badger.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IRelayPersistence = (*BadgerPersistence)(nil)

// NewBadgerPersistence opens (or creates) a Badger database at dataPath with
// SyncWrites enabled and starts a background value-log GC loop.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// get returns a copy of the value under key, or nil if absent.
func (b *BadgerPersistence) get(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (b *BadgerPersistence) set(key string, data []byte) error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (b *BadgerPersistence) delete(key string) error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func nonceKey(chainID uint64, account common.Address) string {
	return keyPrefixNonce + persistence.NonceCheckpointKey(chainID, account)
}

func (b *BadgerPersistence) SaveNonceCheckpoint(cp *persistence.NonceCheckpoint) error {
	if cp == nil {
		return fmt.Errorf("cannot save nil NonceCheckpoint")
	}
	if !common.IsHexAddress(cp.Account) {
		return fmt.Errorf("invalid checkpoint account %q", cp.Account)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalNonceCheckpoint(cp)
	if err != nil {
		return err
	}
	return b.set(nonceKey(cp.ChainID, common.HexToAddress(cp.Account)), data)
}

func (b *BadgerPersistence) LoadNonceCheckpoint(chainID uint64, account common.Address) (*persistence.NonceCheckpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get(nonceKey(chainID, account))
	if err != nil {
		return nil, fmt.Errorf("failed to load NonceCheckpoint: %w", err)
	}
	if data == nil {
		return nil, nil // Not found
	}
	return persistence.UnmarshalNonceCheckpoint(data)
}

func (b *BadgerPersistence) DeleteNonceCheckpoint(chainID uint64, account common.Address) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return b.delete(nonceKey(chainID, account))
}

func (b *BadgerPersistence) SaveRelayRecord(record *persistence.RelayRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil RelayRecord")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalRelayRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RelayRecord: %w", err)
	}
	return b.set(keyPrefixRelay+record.ID, data)
}

func (b *BadgerPersistence) LoadRelayRecord(id uuid.UUID) (*persistence.RelayRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get(keyPrefixRelay + id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load RelayRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalRelayRecord(data)
}

func (b *BadgerPersistence) ListRelayRecords() ([]*persistence.RelayRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := []*persistence.RelayRecord{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRelay)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalRelayRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal RelayRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list RelayRecords: %w", err)
	}

	persistence.SortRelayRecords(records)
	return records, nil
}

func (b *BadgerPersistence) DeleteRelayRecord(id uuid.UUID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return b.delete(keyPrefixRelay + id.String())
}

// Close stops the GC loop and closes the database. Idempotent.
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
