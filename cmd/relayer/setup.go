package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/tx-relayer-go/pkg/abiEncoder"
	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/logger"
	"github.com/Layr-Labs/tx-relayer-go/pkg/metrics"
	"github.com/Layr-Labs/tx-relayer-go/pkg/nodeClient"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence/badger"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence/memory"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence/redis"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayer"
	"github.com/Layr-Labs/tx-relayer-go/pkg/transactionSigner"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// runtime holds everything a subcommand needs and how to tear it down.
type runtime struct {
	cfg     *config.RelayerConfig
	logger  *zap.Logger
	relayer *relayer.Relayer
	store   persistence.IRelayPersistence
	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.logger.Sync()
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// newRuntime parses and validates the configuration, then builds the store,
// signer, node client and relayer.
func newRuntime(ctx context.Context, c *cli.Context) (*runtime, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, err
	}

	cfg, err := parseRelayerConfig(c)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: l}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	contracts, err := abiEncoder.LoadContractStore(cfg.Contracts)
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}
	l.Sugar().Infow("Loaded contracts", "count", contracts.Len())

	store, err := newPersistence(&cfg.Persistence, l)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	})

	signer, err := transactionSigner.NewTransactionSigner(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction signer: %w", err)
	}

	ethClient := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
		BaseUrl:   cfg.RpcUrl,
		BlockType: ethereum.BlockType_Latest,
	}, l)
	backend, err := ethClient.GetEthereumContractCaller()
	if err != nil {
		return nil, fmt.Errorf("failed to get Ethereum contract caller: %w", err)
	}
	rt.closers = append(rt.closers, backend.Close)

	node := nodeClient.NewNodeClient(backend, cfg.Policy, l)
	if err := checkChainID(ctx, node, cfg.ChainID, l); err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.NewMetrics()
		rt.closers = append(rt.closers, serveMetrics(cfg.MetricsAddr, m, l))
	}

	rt.relayer, err = relayer.NewRelayer(&relayer.Config{
		Contracts: contracts,
		Node:      node,
		Signer:    signer,
		Store:     store,
		Metrics:   m,
		Policy:    cfg.Policy,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create relayer: %w", err)
	}

	l.Sugar().Infow("Relayer ready",
		"from", signer.GetFromAddress().Hex(),
		"signer", cfg.SignerType,
		"persistence", cfg.Persistence.Type,
	)
	ok = true
	return rt, nil
}

func newPersistence(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IRelayPersistence, error) {
	switch cfg.Type {
	case config.PersistenceType_Memory, "":
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceType_Badger:
		store, err := badger.NewBadgerPersistence(cfg.DataDir, l)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil
	case config.PersistenceType_Redis:
		store, err := redis.NewRedisPersistence(&redis.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Type)
	}
}

type chainIDQuerier interface {
	QueryChainID(ctx context.Context) (*big.Int, error)
}

// checkChainID fails when an expected chain was configured and the node
// reports a different one.
func checkChainID(ctx context.Context, node chainIDQuerier, expected config.ChainId, l *zap.Logger) error {
	if expected == 0 {
		return nil
	}
	actual, err := node.QueryChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain id: %w", err)
	}
	if !actual.IsUint64() || actual.Uint64() != uint64(expected) {
		return fmt.Errorf("node is on chain %s, expected %d (%s)", actual, expected, config.ChainIdToName[expected])
	}
	l.Sugar().Infow("Using chain", "name", config.ChainIdToName[expected], "chain_id", expected)
	return nil
}

// serveMetrics starts a metrics listener and returns its shutdown function.
func serveMetrics(addr string, m *metrics.Metrics, l *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Sugar().Errorw("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	l.Sugar().Infow("Serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
