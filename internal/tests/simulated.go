package tests

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
)

// SimulatedChainID is the chain id of the go-ethereum simulated backend.
const SimulatedChainID = 1337

type SimulatedChain struct {
	Backend *simulated.Backend
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewSimulatedChain starts an in-process chain with the first dev account funded.
func NewSimulatedChain(t *testing.T) *SimulatedChain {
	t.Helper()
	key, addr := DevKey(DevAccountPrivateKey1)
	balance, _ := new(big.Int).SetString("1000000000000000000000", 10)

	backend := simulated.NewBackend(types.GenesisAlloc{
		addr: {Balance: balance},
	})
	t.Cleanup(func() { _ = backend.Close() })

	return &SimulatedChain{Backend: backend, Key: key, Address: addr}
}

func (s *SimulatedChain) Client() simulated.Client {
	return s.Backend.Client()
}

// AutoMine commits a block every interval until ctx is done.
func (s *SimulatedChain) AutoMine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Backend.Commit()
			}
		}
	}()
}

// Deploy creates a contract from init code with the funded account and mines it.
func (s *SimulatedChain) Deploy(t *testing.T, initCode []byte) common.Address {
	t.Helper()
	ctx := context.Background()
	client := s.Client()

	nonce, err := client.PendingNonceAt(ctx, s.Address)
	require.NoError(t, err)
	head, err := client.HeaderByNumber(ctx, nil)
	require.NoError(t, err)

	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), big.NewInt(1_000_000_000))
	tx, err := types.SignNewTx(s.Key, types.LatestSignerForChainID(big.NewInt(SimulatedChainID)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(SimulatedChainID),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: feeCap,
		Gas:       200_000,
		Data:      initCode,
	})
	require.NoError(t, err)
	require.NoError(t, client.SendTransaction(ctx, tx))
	s.Backend.Commit()

	receipt, err := client.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	return crypto.CreateAddress(s.Address, nonce)
}
