package transactionBuilder

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/nodeClient"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEstimator struct {
	quote *nodeClient.FeeQuote
	err   error
	calls int
	seen  *types.UnsignedTransaction
}

func (f *fakeEstimator) EstimateFee(_ context.Context, tx *types.UnsignedTransaction) (*nodeClient.FeeQuote, error) {
	f.calls++
	f.seen = tx
	return f.quote, f.err
}

var (
	from    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	target  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	chainID = big.NewInt(31337)
)

func newBuilder(t *testing.T, est *fakeEstimator) *TransactionBuilder {
	t.Helper()
	return NewTransactionBuilder(est, config.DefaultRelayPolicy().Fees, zaptest.NewLogger(t))
}

func Test_Build_EstimatesFees(t *testing.T) {
	est := &fakeEstimator{quote: &nodeClient.FeeQuote{
		GasLimit:     100_000,
		BaseFee:      big.NewInt(10_000_000_000),
		SuggestedTip: big.NewInt(2_000_000_000),
	}}
	tx, err := newBuilder(t, est).Build(context.Background(), &BuildRequest{
		From: from,
		To:   target,
		Data: []byte{0xa9, 0x05, 0x9c, 0xbb},
	}, 7, chainID)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), tx.Nonce)
	assert.Equal(t, chainID, tx.ChainID)
	assert.Equal(t, target, tx.To)
	assert.Equal(t, 0, tx.Value.Sign())
	assert.Equal(t, uint64(120_000), tx.Fees.GasLimit)
	assert.Equal(t, big.NewInt(2_000_000_000), tx.Fees.GasTipCap)
	// 10 gwei * 2 + 2 gwei
	assert.Equal(t, big.NewInt(22_000_000_000), tx.Fees.GasFeeCap)
	assert.Equal(t, from, est.seen.From)
}

func Test_Build_FallbackTip(t *testing.T) {
	est := &fakeEstimator{quote: &nodeClient.FeeQuote{GasLimit: 21_000, BaseFee: big.NewInt(5)}}
	tx, err := newBuilder(t, est).Build(context.Background(), &BuildRequest{From: from, To: target}, 0, chainID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), tx.Fees.GasTipCap)
	assert.Equal(t, big.NewInt(1_000_000_010), tx.Fees.GasFeeCap)
}

func Test_Build_ClampsToMaxFee(t *testing.T) {
	policy := config.DefaultRelayPolicy().Fees
	policy.MaxFeePerGasGwei = decimal.NewFromInt(3)
	est := &fakeEstimator{quote: &nodeClient.FeeQuote{
		GasLimit:     21_000,
		BaseFee:      big.NewInt(5_000_000_000),
		SuggestedTip: big.NewInt(4_000_000_000),
	}}
	tx, err := NewTransactionBuilder(est, policy, zaptest.NewLogger(t)).
		Build(context.Background(), &BuildRequest{From: from, To: target}, 0, chainID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3_000_000_000), tx.Fees.GasFeeCap)
	assert.Equal(t, big.NewInt(3_000_000_000), tx.Fees.GasTipCap)
}

func Test_Build_CallerFees(t *testing.T) {
	t.Run("Should not touch the node when fees are complete", func(t *testing.T) {
		est := &fakeEstimator{err: errors.New("must not be called")}
		fees := &types.FeeParams{GasLimit: 50_000, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(3)}
		tx, err := newBuilder(t, est).Build(context.Background(), &BuildRequest{From: from, To: target, Fees: fees}, 1, chainID)
		require.NoError(t, err)
		assert.Equal(t, *fees, tx.Fees)
		assert.Zero(t, est.calls)

		fees.GasTipCap.SetInt64(99)
		assert.Equal(t, big.NewInt(1), tx.Fees.GasTipCap, "builder copies caller fees")
	})

	t.Run("Should fill only the missing fields", func(t *testing.T) {
		est := &fakeEstimator{quote: &nodeClient.FeeQuote{GasLimit: 10_000, BaseFee: big.NewInt(100), SuggestedTip: big.NewInt(7)}}
		tx, err := newBuilder(t, est).Build(context.Background(), &BuildRequest{
			From: from, To: target, Fees: &types.FeeParams{GasLimit: 99_999},
		}, 1, chainID)
		require.NoError(t, err)
		assert.Equal(t, uint64(99_999), tx.Fees.GasLimit)
		assert.Equal(t, big.NewInt(207), tx.Fees.GasFeeCap)
	})

	t.Run("Should reject a tip above the fee cap", func(t *testing.T) {
		fees := &types.FeeParams{GasLimit: 50_000, GasTipCap: big.NewInt(5), GasFeeCap: big.NewInt(3)}
		_, err := newBuilder(t, &fakeEstimator{}).Build(context.Background(), &BuildRequest{From: from, To: target, Fees: fees}, 1, chainID)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindInvalidFees))
	})
}

func Test_Build_Errors(t *testing.T) {
	t.Run("Should reject the zero address", func(t *testing.T) {
		_, err := newBuilder(t, &fakeEstimator{}).Build(context.Background(), &BuildRequest{From: from}, 0, chainID)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindInvalidTarget))
	})

	t.Run("Should report estimation failures", func(t *testing.T) {
		est := &fakeEstimator{err: errors.New("execution reverted")}
		_, err := newBuilder(t, est).Build(context.Background(), &BuildRequest{From: from, To: target}, 0, chainID)
		require.Error(t, err)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindFeeEstimationFailed))
	})

	t.Run("Should require a chain id", func(t *testing.T) {
		_, err := newBuilder(t, &fakeEstimator{}).Build(context.Background(), &BuildRequest{From: from, To: target}, 0, nil)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindContextUnavailable))
	})
}

func Test_BumpFees(t *testing.T) {
	prev := &types.FeeParams{GasLimit: 21_000, GasTipCap: big.NewInt(1_000_000_000), GasFeeCap: big.NewInt(20_000_000_000)}

	t.Run("Should strictly raise both fields and keep the gas limit", func(t *testing.T) {
		next, err := BumpFees(prev, 1.125, nil)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1_125_000_000), next.GasTipCap)
		assert.Equal(t, big.NewInt(22_500_000_000), next.GasFeeCap)
		assert.Equal(t, prev.GasLimit, next.GasLimit)
		assert.Equal(t, big.NewInt(1_000_000_000), prev.GasTipCap, "input untouched")
	})

	t.Run("Should raise tiny values by at least one wei", func(t *testing.T) {
		next, err := BumpFees(&types.FeeParams{GasLimit: 1, GasTipCap: big.NewInt(0), GasFeeCap: big.NewInt(1)}, 1.1, nil)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1), next.GasTipCap)
		assert.Equal(t, big.NewInt(2), next.GasFeeCap)
	})

	t.Run("Should clamp to the cap while still raising", func(t *testing.T) {
		next, err := BumpFees(prev, 2, big.NewInt(21_000_000_000))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(21_000_000_000), next.GasFeeCap)
	})

	t.Run("Should fail once the cap is reached", func(t *testing.T) {
		_, err := BumpFees(prev, 1.125, big.NewInt(20_000_000_000))
		require.ErrorIs(t, err, ErrFeeCapExceeded)
	})

	t.Run("Should use the policy factor", func(t *testing.T) {
		next, err := newBuilder(t, &fakeEstimator{}).BumpFees(prev)
		require.NoError(t, err)
		assert.Equal(t, 1, next.GasFeeCap.Cmp(prev.GasFeeCap))
	})

	t.Run("Should refuse incomplete fees", func(t *testing.T) {
		_, err := BumpFees(&types.FeeParams{}, 1.1, nil)
		require.Error(t, err)
	})
}
