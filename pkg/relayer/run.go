package relayer

import (
	"fmt"

	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// relayRun is the mutable state of one action. It is owned by the goroutine
// executing the action and never shared.
type relayRun struct {
	action *RelayAction
	from   common.Address
	record *persistence.RelayRecord
	result *types.RelayResult
	logger *zap.Logger

	// nonce is reserved when hasNonce is set
	nonce    uint64
	hasNonce bool

	// sent holds every transaction under nonce that may have reached the
	// network; a nonce with any such transaction is never handed back.
	sent []*types.SignedTransaction
}

func (r *Relayer) newRun(action *RelayAction) *relayRun {
	now := r.now().Unix()
	from := r.signer.GetFromAddress()
	run := &relayRun{
		action: action,
		from:   from,
		record: &persistence.RelayRecord{
			ID:        action.ID.String(),
			Contract:  action.Contract,
			Method:    action.Method.Signature,
			State:     types.RelayStateRequested,
			Broadcast: types.NotBroadcast,
			CreatedAt: now,
			UpdatedAt: now,
			History:   []persistence.StateTransition{{State: types.RelayStateRequested, At: now}},
		},
		result: &types.RelayResult{
			ActionID:  action.ID,
			State:     types.RelayStateRequested,
			Broadcast: types.NotBroadcast,
		},
		logger: r.logger.With(
			zap.String("actionId", action.ID.String()),
			zap.String("contract", action.Contract),
			zap.String("method", action.Method.Signature),
		),
	}
	r.metrics.Transition(string(types.RelayStateRequested))
	r.persist(run)
	run.logger.Sugar().Infow("Relay requested", "target", action.Target.Hex(), "from", from.Hex())
	return run
}

func (r *Relayer) transition(run *relayRun, state types.RelayState, note string) {
	prev := run.result.State
	run.result.State = state
	run.record.State = state

	now := r.now().Unix()
	run.record.UpdatedAt = now
	run.record.History = append(run.record.History, persistence.StateTransition{State: state, At: now, Note: note})

	r.metrics.Transition(string(state))
	r.persist(run)
	run.logger.Info("Relay state transition",
		zap.String("from", string(prev)),
		zap.String("to", string(state)),
		zap.String("note", note),
	)
}

func (r *Relayer) setNonce(run *relayRun, nonce uint64) {
	run.nonce = nonce
	run.hasNonce = true
	run.sent = nil
	run.result.Nonce = nonce
	n := nonce
	run.record.Nonce = &n
}

func (r *Relayer) setSubmission(run *relayRun, hash common.Hash, broadcast types.BroadcastStatus) {
	run.result.TxHash = hash
	run.result.Broadcast = broadcast
	run.record.TxHash = hash.Hex()
	run.record.Broadcast = broadcast
}

func (r *Relayer) maybeSent(run *relayRun, signed *types.SignedTransaction) {
	r.setSubmission(run, signed.Hash, types.MaybeBroadcast)
	for _, s := range run.sent {
		if s.Hash == signed.Hash {
			return
		}
	}
	run.sent = append(run.sent, signed)
}

// releaseNonce gives a never-accepted reservation back to the tracker. A nonce
// whose transaction may already be on the network stays reserved.
func (r *Relayer) releaseNonce(run *relayRun) {
	if !run.hasNonce {
		return
	}
	run.hasNonce = false
	if len(run.sent) > 0 {
		run.logger.Sugar().Warnw("Keeping nonce reserved, an earlier submission may have been broadcast",
			"nonce", run.nonce,
			"txHash", run.sent[len(run.sent)-1].Hash.Hex(),
		)
		return
	}
	r.nonces.ReleaseOnFailure(run.from, run.nonce)
}

// fail moves the run to Failed, stamping err with the state the action was in.
func (r *Relayer) fail(run *relayRun, err error) error {
	re := relayErrors.AsRelayError(err)
	if re.State == "" {
		re.WithState(run.result.State)
	}
	if re.Broadcast == "" || re.Broadcast == types.NotBroadcast {
		re.WithBroadcast(run.result.Broadcast)
	}
	run.result.Broadcast = re.Broadcast
	run.record.Broadcast = re.Broadcast
	run.record.ErrorKind = string(re.Kind)
	run.record.Error = re.Error()

	r.transition(run, types.RelayStateFailed, string(re.Kind))
	run.logger.Sugar().Errorw("Relay failed",
		"kind", re.Kind,
		"reason", re.Reason,
		"lastState", re.State,
		"broadcast", re.Broadcast,
		"attempts", run.result.Attempts,
		"error", re,
	)
	return re
}

func (r *Relayer) confirm(run *relayRun, receipt *ethereumTypes.Receipt) {
	run.result.Receipt = receipt
	if receipt.BlockNumber != nil {
		run.record.BlockNumber = receipt.BlockNumber.Uint64()
	}
	r.transition(run, types.RelayStateConfirmed, fmt.Sprintf("block %d", run.record.BlockNumber))
}

func (r *Relayer) persist(run *relayRun) {
	if r.store == nil {
		return
	}
	run.record.Attempts = run.result.Attempts
	if err := r.store.SaveRelayRecord(run.record.Copy()); err != nil {
		run.logger.Sugar().Warnw("Failed to persist relay record", "error", err)
	}
}
