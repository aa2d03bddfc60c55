package relayer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/abiEncoder"
	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/metrics"
	"github.com/Layr-Labs/tx-relayer-go/pkg/nodeClient"
	"github.com/Layr-Labs/tx-relayer-go/pkg/nonceTracker"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/transactionBuilder"
	"github.com/Layr-Labs/tx-relayer-go/pkg/transactionSigner"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RelayRequest is what an external caller asks for: a method on a known
// contract, its arguments, and optionally explicit fees.
type RelayRequest struct {
	// Contract is a registered contract name or its hex address
	Contract string
	// Method is a bare method name or a full signature such as "transfer(address,uint256)"
	Method string
	Args   []any
	Value  *big.Int
	Fees   *types.FeeParams
}

// RelayAction is the resolved, immutable form of a RelayRequest.
type RelayAction struct {
	ID       uuid.UUID
	Contract string
	Target   common.Address
	Method   *abiEncoder.MethodDescriptor
	Args     []any
	Value    *big.Int
	Fees     *types.FeeParams
}

// Config wires the relayer's collaborators. Store and Metrics are optional.
type Config struct {
	Contracts *abiEncoder.ContractStore
	Node      nodeClient.INodeClient
	Signer    transactionSigner.ITransactionSigner
	Store     persistence.IRelayPersistence
	Metrics   *metrics.Metrics
	Policy    *config.RelayPolicy
}

// Relayer runs relay actions for the single account held by its signer.
type Relayer struct {
	contracts *abiEncoder.ContractStore
	node      nodeClient.INodeClient
	nonces    *nonceTracker.NonceTracker
	builder   *transactionBuilder.TransactionBuilder
	signer    transactionSigner.ITransactionSigner
	store     persistence.IRelayPersistence
	metrics   *metrics.Metrics
	policy    *config.RelayPolicy
	logger    *zap.Logger

	now func() time.Time
}

func NewRelayer(cfg *Config, logger *zap.Logger) (*Relayer, error) {
	if cfg.Contracts == nil || cfg.Node == nil || cfg.Signer == nil {
		return nil, fmt.Errorf("contracts, node and signer are required")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = config.DefaultRelayPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay policy: %w", err)
	}

	return &Relayer{
		contracts: cfg.Contracts,
		node:      cfg.Node,
		nonces:    nonceTracker.NewNonceTracker(cfg.Node, cfg.Store, policy.Nonce, logger),
		builder:   transactionBuilder.NewTransactionBuilder(cfg.Node, policy.Fees, logger),
		signer:    cfg.Signer,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (r *Relayer) GetFromAddress() common.Address {
	return r.signer.GetFromAddress()
}

// NewAction resolves a request against the loaded contract bindings.
func (r *Relayer) NewAction(req *RelayRequest) (*RelayAction, error) {
	binding, err := r.contracts.Resolve(req.Contract)
	if err != nil {
		return nil, relayErrors.InvalidTarget(err.Error())
	}
	method, err := binding.Method(req.Method)
	if err != nil {
		return nil, relayErrors.Encoding(fmt.Sprintf("contract %s", binding.Name), err)
	}
	return &RelayAction{
		ID:       uuid.New(),
		Contract: binding.Name,
		Target:   binding.Address,
		Method:   method,
		Args:     append([]any(nil), req.Args...),
		Value:    req.Value,
		Fees:     req.Fees.Copy(),
	}, nil
}

// Relay drives one action to a terminal state, or to Submitted when ctx is
// cancelled after broadcast. The result is always non-nil; err is a
// *relayErrors.RelayError whenever the action did not confirm.
func (r *Relayer) Relay(ctx context.Context, req *RelayRequest) (*types.RelayResult, error) {
	action, err := r.NewAction(req)
	if err != nil {
		re := relayErrors.AsRelayError(err).WithState(types.RelayStateRequested)
		r.logger.Sugar().Warnw("Rejected relay request", "contract", req.Contract, "method", req.Method, "error", re)
		return &types.RelayResult{
			State:     types.RelayStateFailed,
			Broadcast: types.NotBroadcast,
		}, re
	}
	return r.RelayAction(ctx, action)
}

// RelayAction runs an already resolved action.
func (r *Relayer) RelayAction(ctx context.Context, action *RelayAction) (*types.RelayResult, error) {
	run := r.newRun(action)
	finished := r.metrics.Started()

	err := r.execute(ctx, run)

	kind := ""
	if err != nil {
		kind = string(relayErrors.KindOf(err))
	}
	finished(string(run.result.State), kind)
	return run.result, err
}

// Call performs a read-only call and decodes the outputs.
func (r *Relayer) Call(ctx context.Context, contract string, method string, args []any) ([]any, error) {
	binding, err := r.contracts.Resolve(contract)
	if err != nil {
		return nil, relayErrors.InvalidTarget(err.Error())
	}
	m, err := binding.Method(method)
	if err != nil {
		return nil, relayErrors.Encoding(fmt.Sprintf("contract %s", binding.Name), err)
	}
	data, err := abiEncoder.EncodeCall(m, args...)
	if err != nil {
		return nil, err
	}
	out, err := r.node.CallContract(ctx, r.signer.GetFromAddress(), binding.Address, data)
	if err != nil {
		return nil, relayErrors.Network("eth_call", err)
	}
	return abiEncoder.DecodeOutputs(m, out)
}

// Status returns the persisted record of a relay action.
func (r *Relayer) Status(id uuid.UUID) (*persistence.RelayRecord, error) {
	if r.store == nil {
		return nil, fmt.Errorf("no persistence configured")
	}
	record, err := r.store.LoadRelayRecord(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load relay record %s: %w", id, err)
	}
	if record == nil {
		return nil, fmt.Errorf("relay record %s not found", id)
	}
	return record, nil
}

// ChainContext exposes the tracker's view of the relaying account.
func (r *Relayer) ChainContext() (*types.ChainContext, bool) {
	return r.nonces.Context(r.signer.GetFromAddress())
}
