package nodeClient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EthBackend is the subset of the execution node API the relayer needs. It is
// satisfied by *ethclient.Client and by the simulated backend's client.
type EthBackend interface {
	ethereum.ChainIDReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.TransactionSender
	ethereum.TransactionReader
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethereumTypes.Header, error)
}

// INodeClient is the relayer's view of one remote execution node.
type INodeClient interface {
	QueryChainID(ctx context.Context) (*big.Int, error)
	QueryAccountNonce(ctx context.Context, account common.Address, pending bool) (uint64, error)
	EstimateFee(ctx context.Context, tx *types.UnsignedTransaction) (*FeeQuote, error)
	Submit(ctx context.Context, tx *types.SignedTransaction) *types.SubmissionResult
	PollReceipt(ctx context.Context, hash common.Hash) (*types.ReceiptResult, error)
	CallContract(ctx context.Context, from common.Address, to common.Address, data []byte) ([]byte, error)
}

// FeeQuote is the raw node data fee estimation is built from.
type FeeQuote struct {
	GasLimit uint64
	BaseFee  *big.Int
	// SuggestedTip is nil when the node could not suggest a priority fee
	SuggestedTip *big.Int
}

type NodeClient struct {
	backend  EthBackend
	limiter  *rate.Limiter
	timeouts config.TimeoutPolicy
	logger   *zap.Logger
}

var _ INodeClient = (*NodeClient)(nil)

func NewNodeClient(backend EthBackend, policy *config.RelayPolicy, logger *zap.Logger) *NodeClient {
	limit := rate.Inf
	if policy.RateLimit.RequestsPerSecond > 0 {
		limit = rate.Limit(policy.RateLimit.RequestsPerSecond)
	}
	burst := policy.RateLimit.Burst
	if burst < 1 {
		burst = 1
	}
	return &NodeClient{
		backend:  backend,
		limiter:  rate.NewLimiter(limit, burst),
		timeouts: policy.Timeouts,
		logger:   logger,
	}
}

// begin waits for a rate limiter token and derives the per-operation deadline.
func (nc *NodeClient) begin(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := nc.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	if timeout <= 0 {
		c, cancel := context.WithCancel(ctx)
		return c, cancel, nil
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	return c, cancel, nil
}

func (nc *NodeClient) QueryChainID(ctx context.Context) (*big.Int, error) {
	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.ChainQuery)
	if err != nil {
		return nil, err
	}
	defer cancel()

	chainID, err := nc.backend.ChainID(opCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	return chainID, nil
}

// QueryAccountNonce returns the confirmed transaction count, or the pool-aware
// count when pending is set.
func (nc *NodeClient) QueryAccountNonce(ctx context.Context, account common.Address, pending bool) (uint64, error) {
	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.ChainQuery)
	if err != nil {
		return 0, err
	}
	defer cancel()

	var nonce uint64
	if pending {
		nonce, err = nc.backend.PendingNonceAt(opCtx, account)
	} else {
		nonce, err = nc.backend.NonceAt(opCtx, account, nil)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query nonce for %s: %w", account.Hex(), err)
	}
	return nonce, nil
}

func (nc *NodeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.FeeEstimation)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return nc.backend.SuggestGasTipCap(opCtx)
}

// LatestBaseFee returns the base fee of the latest block, zero on pre-London chains.
func (nc *NodeClient) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.FeeEstimation)
	if err != nil {
		return nil, err
	}
	defer cancel()

	header, err := nc.backend.HeaderByNumber(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block header: %w", err)
	}
	if header.BaseFee == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(header.BaseFee), nil
}

// EstimateFee gathers base fee, priority fee suggestion and gas estimate for tx.
// A failing tip suggestion is tolerated; the caller substitutes its fallback.
func (nc *NodeClient) EstimateFee(ctx context.Context, tx *types.UnsignedTransaction) (*FeeQuote, error) {
	tip, err := nc.SuggestGasTipCap(ctx)
	if err != nil {
		nc.logger.Sugar().Warnw("EstimateFee: cannot get gasTipCap, caller will use fallback", zap.Error(err))
		tip = nil
	}

	baseFee, err := nc.LatestBaseFee(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.FeeEstimation)
	if err != nil {
		return nil, err
	}
	defer cancel()

	to := tx.To
	gasLimit, err := nc.backend.EstimateGas(opCtx, ethereum.CallMsg{
		From:  tx.From,
		To:    &to,
		Value: tx.Value,
		Data:  tx.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	return &FeeQuote{
		GasLimit:     gasLimit,
		BaseFee:      baseFee,
		SuggestedTip: tip,
	}, nil
}

// Submit broadcasts the signed bytes and classifies the node's answer. It never
// returns a Go error; every failure is carried in the result.
func (nc *NodeClient) Submit(ctx context.Context, tx *types.SignedTransaction) *types.SubmissionResult {
	result := &types.SubmissionResult{TxHash: tx.Hash}

	var ethTx ethereumTypes.Transaction
	if err := ethTx.UnmarshalBinary(tx.Raw); err != nil {
		result.Outcome = types.SubmissionRejected
		result.Reason = types.RejectOther
		result.Message = fmt.Sprintf("invalid signed transaction: %v", err)
		result.Err = err
		return result
	}

	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.Submission)
	if err != nil {
		result.Outcome = types.SubmissionNetworkError
		result.Message = err.Error()
		result.Err = err
		return result
	}
	defer cancel()

	err = nc.backend.SendTransaction(opCtx, &ethTx)
	result.Outcome, result.Reason = ClassifySubmitError(err)
	if err != nil {
		result.Message = err.Error()
		result.Err = err
	}

	nc.logger.Debug("Submit: node answered",
		zap.String("txHash", tx.Hash.Hex()),
		zap.Uint64("nonce", tx.Nonce),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", string(result.Reason)),
		zap.String("message", result.Message),
	)
	return result
}

// PollReceipt reports whether hash has been mined. A transaction the node no
// longer knows about at all is NotFound.
func (nc *NodeClient) PollReceipt(ctx context.Context, hash common.Hash) (*types.ReceiptResult, error) {
	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.ReceiptQuery)
	if err != nil {
		return nil, err
	}
	defer cancel()

	receipt, err := nc.backend.TransactionReceipt(opCtx, hash)
	if err == nil && receipt != nil {
		return &types.ReceiptResult{Status: types.ReceiptConfirmed, Receipt: receipt}, nil
	}
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}

	_, _, err = nc.backend.TransactionByHash(opCtx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return &types.ReceiptResult{Status: types.ReceiptNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction %s: %w", hash.Hex(), err)
	}
	// Known to the node but no receipt yet; mined-but-unindexed is treated the same.
	return &types.ReceiptResult{Status: types.ReceiptStillPending}, nil
}

// CallContract performs a read-only eth_call against the latest block.
func (nc *NodeClient) CallContract(ctx context.Context, from common.Address, to common.Address, data []byte) ([]byte, error) {
	opCtx, cancel, err := nc.begin(ctx, nc.timeouts.ChainQuery)
	if err != nil {
		return nil, err
	}
	defer cancel()

	out, err := nc.backend.CallContract(opCtx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", to.Hex(), err)
	}
	return out, nil
}
