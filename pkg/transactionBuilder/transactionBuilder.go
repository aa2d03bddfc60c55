package transactionBuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/nodeClient"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrFeeCapExceeded = errors.New("fee bump would exceed the configured max fee per gas")

// IFeeEstimator is the part of the node client fee estimation needs.
type IFeeEstimator interface {
	EstimateFee(ctx context.Context, tx *types.UnsignedTransaction) (*nodeClient.FeeQuote, error)
}

// BuildRequest carries everything about a transaction except nonce and chain id.
type BuildRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
	// Fees may be nil or partial; missing fields are estimated
	Fees *types.FeeParams
}

type TransactionBuilder struct {
	node   IFeeEstimator
	policy config.FeePolicy
	logger *zap.Logger
}

func NewTransactionBuilder(node IFeeEstimator, policy config.FeePolicy, logger *zap.Logger) *TransactionBuilder {
	return &TransactionBuilder{
		node:   node,
		policy: policy,
		logger: logger,
	}
}

// Build assembles an unsigned EIP-1559 transaction.
func (tb *TransactionBuilder) Build(ctx context.Context, req *BuildRequest, nonce uint64, chainID *big.Int) (*types.UnsignedTransaction, error) {
	if req.To == (common.Address{}) {
		return nil, relayErrors.InvalidTarget("target address is the zero address")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, relayErrors.ContextUnavailable("chain id unknown", nil)
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return nil, relayErrors.InvalidFees("negative value", nil)
	}

	tx := &types.UnsignedTransaction{
		From:    req.From,
		To:      req.To,
		Data:    common.CopyBytes(req.Data),
		Value:   new(big.Int).Set(value),
		Nonce:   nonce,
		ChainID: new(big.Int).Set(chainID),
	}

	if req.Fees.IsComplete() {
		tx.Fees = *req.Fees.Copy()
	} else {
		fees, err := tb.estimateFees(ctx, tx, req.Fees)
		if err != nil {
			return nil, err
		}
		tx.Fees = *fees
	}

	if tx.Fees.GasTipCap.Cmp(tx.Fees.GasFeeCap) > 0 {
		return nil, relayErrors.InvalidFees(fmt.Sprintf("gas tip cap %s above fee cap %s",
			tx.Fees.GasTipCap.String(), tx.Fees.GasFeeCap.String()), nil)
	}

	tb.logger.Debug("Built transaction",
		zap.String("to", tx.To.Hex()),
		zap.Uint64("nonce", tx.Nonce),
		zap.Uint64("gasLimit", tx.Fees.GasLimit),
		zap.String("maxPriorityFeePerGas", tx.Fees.GasTipCap.String()),
		zap.String("maxFeePerGas", tx.Fees.GasFeeCap.String()),
	)
	return tx, nil
}

// estimateFees fills whatever the caller left out: tip from the node (or the
// fallback), fee cap = baseFee*multiplier + tip, gas limit = estimate + buffer.
func (tb *TransactionBuilder) estimateFees(ctx context.Context, tx *types.UnsignedTransaction, given *types.FeeParams) (*types.FeeParams, error) {
	quote, err := tb.node.EstimateFee(ctx, tx)
	if err != nil {
		return nil, relayErrors.FeeEstimationFailed("estimate fee", err)
	}

	fees := given.Copy()
	if fees == nil {
		fees = &types.FeeParams{}
	}

	if fees.GasTipCap == nil {
		if quote.SuggestedTip != nil {
			fees.GasTipCap = new(big.Int).Set(quote.SuggestedTip)
		} else {
			fees.GasTipCap = tb.policy.FallbackTipWei()
		}
	}

	if fees.GasFeeCap == nil {
		feeCap := new(big.Int).Mul(quote.BaseFee, big.NewInt(tb.policy.BaseFeeMultiplier))
		feeCap.Add(feeCap, fees.GasTipCap)
		if ceiling := tb.policy.MaxFeePerGasWei(); ceiling != nil && feeCap.Cmp(ceiling) > 0 {
			tb.logger.Sugar().Warnw("Estimated fee cap above configured maximum, clamping",
				"estimated", feeCap.String(),
				"max", ceiling.String(),
			)
			feeCap = ceiling
			if fees.GasTipCap.Cmp(feeCap) > 0 {
				fees.GasTipCap = new(big.Int).Set(feeCap)
			}
		}
		fees.GasFeeCap = feeCap
	}

	if fees.GasLimit == 0 {
		fees.GasLimit = addGasBuffer(quote.GasLimit, tb.policy.GasLimitBufferPercent)
	}
	return fees, nil
}

// BumpFees raises prev by the configured factor for an underpriced resubmission.
func (tb *TransactionBuilder) BumpFees(prev *types.FeeParams) (*types.FeeParams, error) {
	return BumpFees(prev, tb.policy.BumpFactor, tb.policy.MaxFeePerGasWei())
}

// BumpFees multiplies tip and fee cap by factor, raising each by at least one
// wei. The fee cap is clamped to maxFeeCap when set; if clamping leaves either
// field no higher than before, ErrFeeCapExceeded is returned.
func BumpFees(prev *types.FeeParams, factor float64, maxFeeCap *big.Int) (*types.FeeParams, error) {
	if !prev.IsComplete() {
		return nil, fmt.Errorf("cannot bump incomplete fees")
	}

	next := prev.Copy()
	next.GasTipCap = bump(prev.GasTipCap, factor)
	next.GasFeeCap = bump(prev.GasFeeCap, factor)

	if maxFeeCap != nil && next.GasFeeCap.Cmp(maxFeeCap) > 0 {
		next.GasFeeCap = new(big.Int).Set(maxFeeCap)
	}
	if next.GasTipCap.Cmp(next.GasFeeCap) > 0 {
		next.GasTipCap = new(big.Int).Set(next.GasFeeCap)
	}

	if next.GasFeeCap.Cmp(prev.GasFeeCap) <= 0 || next.GasTipCap.Cmp(prev.GasTipCap) <= 0 {
		return nil, fmt.Errorf("%w: fee cap %s, max %s", ErrFeeCapExceeded, prev.GasFeeCap.String(), maxFeeCap.String())
	}
	return next, nil
}

func bump(x *big.Int, factor float64) *big.Int {
	scaled := decimal.NewFromBigInt(x, 0).Mul(decimal.NewFromFloat(factor)).Ceil().BigInt()
	minimum := new(big.Int).Add(x, big.NewInt(1))
	if scaled.Cmp(minimum) < 0 {
		return minimum
	}
	return scaled
}

func addGasBuffer(gasLimit uint64, percent uint64) uint64 {
	return gasLimit + gasLimit*percent/100
}
