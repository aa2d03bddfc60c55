package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixNonce       = "relayer:nonce:"
	keyPrefixRelay       = "relayer:relay:"
	keySchemaVersion     = "relayer:metadata:schema_version"
	currentSchemaVersion = "relayer-v1"

	// Redis has no prefix iteration; relay ids are tracked in a set for listing
	keySetRelays = "relayer:relays:index"

	operationTimeout = 5 * time.Second
)

// RedisPersistence stores relayer state in Redis, so several short-lived relayer
// processes can share nonce checkpoints and relay history.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IRelayPersistence = (*RedisPersistence)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "staging:" gives "staging:relayer:nonce:..."
	KeyPrefix string
}

func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

func (r *RedisPersistence) nonceKey(chainID uint64, account common.Address) string {
	return r.prefixKey(keyPrefixNonce + persistence.NonceCheckpointKey(chainID, account))
}

func (r *RedisPersistence) relayKey(id string) string {
	return r.prefixKey(keyPrefixRelay + id)
}

func (r *RedisPersistence) SaveNonceCheckpoint(cp *persistence.NonceCheckpoint) error {
	if cp == nil {
		return fmt.Errorf("cannot save nil NonceCheckpoint")
	}
	if !common.IsHexAddress(cp.Account) {
		return fmt.Errorf("invalid checkpoint account %q", cp.Account)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalNonceCheckpoint(cp)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	key := r.nonceKey(cp.ChainID, common.HexToAddress(cp.Account))
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save NonceCheckpoint: %w", err)
	}
	return nil
}

func (r *RedisPersistence) LoadNonceCheckpoint(chainID uint64, account common.Address) (*persistence.NonceCheckpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.nonceKey(chainID, account)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load NonceCheckpoint: %w", err)
	}
	return persistence.UnmarshalNonceCheckpoint(data)
}

func (r *RedisPersistence) DeleteNonceCheckpoint(chainID uint64, account common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	return r.client.Del(ctx, r.nonceKey(chainID, account)).Err()
}

func (r *RedisPersistence) SaveRelayRecord(record *persistence.RelayRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil RelayRecord")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalRelayRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RelayRecord: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.relayKey(record.ID), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetRelays), record.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save RelayRecord: %w", err)
	}
	return nil
}

func (r *RedisPersistence) LoadRelayRecord(id uuid.UUID) (*persistence.RelayRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.relayKey(id.String())).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load RelayRecord: %w", err)
	}
	return persistence.UnmarshalRelayRecord(data)
}

func (r *RedisPersistence) ListRelayRecords() ([]*persistence.RelayRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetRelays)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list RelayRecord ids: %w", err)
	}
	if len(ids) == 0 {
		return []*persistence.RelayRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.relayKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch RelayRecords: %w", err)
	}

	records := make([]*persistence.RelayRecord, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for RelayRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalRelayRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal RelayRecord, skipping", "key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}

	persistence.SortRelayRecords(records)
	return records, nil
}

func (r *RedisPersistence) DeleteRelayRecord(id uuid.UUID) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.relayKey(id.String()))
	pipe.SRem(ctx, r.prefixKey(keySetRelays), id.String())
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the client. Idempotent.
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
