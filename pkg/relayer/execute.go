package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/abiEncoder"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/transactionBuilder"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

func (r *Relayer) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    r.policy.Retry.InitialBackoff,
		Max:    r.policy.Retry.MaxBackoff,
		Factor: r.policy.Retry.BackoffMultiple,
		Jitter: true,
	}
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cancelled(cause error) *relayErrors.RelayError {
	return relayErrors.New(relayErrors.KindCancelled, "relay cancelled by caller", cause)
}

// execute walks Requested → Encoded → Built → Signed → Submitted → terminal.
func (r *Relayer) execute(ctx context.Context, run *relayRun) error {
	action := run.action

	data, err := abiEncoder.EncodeCall(action.Method, action.Args...)
	if err != nil {
		return r.fail(run, err)
	}
	r.transition(run, types.RelayStateEncoded, fmt.Sprintf("%d bytes", len(data)))

	nonceRetries := 0
	for {
		unsigned, err := r.buildWithRetry(ctx, run, data)
		if err != nil {
			return r.fail(run, err)
		}
		r.transition(run, types.RelayStateBuilt, fmt.Sprintf("nonce %d", unsigned.Nonce))

		outcome, err := r.signAndSubmit(ctx, run, unsigned)
		if err != nil {
			return r.fail(run, err)
		}
		if outcome == nil {
			// nonce too low: a fresh reservation is needed
			nonceRetries++
			if nonceRetries > r.policy.Retry.MaxNonceRetries {
				return r.fail(run, relayErrors.Rejected(types.RejectNonceTooLow,
					fmt.Sprintf("nonce retry limit %d reached", r.policy.Retry.MaxNonceRetries)))
			}
			r.metrics.Retry("nonce_too_low")
			r.transition(run, types.RelayStateRetrying, "nonce too low")
			continue
		}
		return r.awaitReceipt(ctx, run, outcome)
	}
}

// buildWithRetry reserves a nonce and builds the transaction, retrying
// transient context and fee estimation failures with backoff.
func (r *Relayer) buildWithRetry(ctx context.Context, run *relayRun, data []byte) (*types.UnsignedTransaction, error) {
	b := r.newBackoff()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		unsigned, err := r.build(ctx, run, data)
		if err == nil {
			return unsigned, nil
		}
		r.releaseNonce(run)

		re := relayErrors.AsRelayError(err)
		if !re.IsRetryable() || attempt >= r.policy.Retry.MaxAttempts {
			return nil, re
		}

		delay := b.Duration()
		r.metrics.Retry(string(re.Kind))
		r.transition(run, types.RelayStateRetrying, string(re.Kind))
		run.logger.Sugar().Warnw("Build failed, backing off",
			"attempt", attempt,
			"maxAttempts", r.policy.Retry.MaxAttempts,
			"delay", delay,
			"error", re,
		)
		if err := wait(ctx, delay); err != nil {
			return nil, cancelled(err)
		}
	}
}

func (r *Relayer) build(ctx context.Context, run *relayRun, data []byte) (*types.UnsignedTransaction, error) {
	chainID, err := r.nonces.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := r.nonces.ReserveNonce(ctx, run.from)
	if err != nil {
		return nil, err
	}
	r.setNonce(run, nonce)

	return r.builder.Build(ctx, &transactionBuilder.BuildRequest{
		From:  run.from,
		To:    run.action.Target,
		Value: run.action.Value,
		Data:  data,
		Fees:  run.action.Fees,
	}, nonce, chainID)
}

// signAndSubmit signs under the reserved nonce and submits, bumping fees on
// underpriced rejections. It returns (nil, nil) when the node reported the
// nonce as used and the caller must rebuild with a fresh one.
func (r *Relayer) signAndSubmit(ctx context.Context, run *relayRun, unsigned *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	feeBumps := 0
	for {
		if err := ctx.Err(); err != nil {
			r.releaseNonce(run)
			return nil, cancelled(err)
		}

		// the nonce is bound to one payload before any signature exists for it
		if err := r.nonces.BindPayload(run.from, unsigned.Nonce, unsigned.PayloadHash()); err != nil {
			r.releaseNonce(run)
			return nil, relayErrors.New(relayErrors.KindInternal, "nonce payload binding", err)
		}

		signed, err := r.signer.Sign(ctx, unsigned)
		if err != nil {
			r.releaseNonce(run)
			return nil, err
		}
		r.transition(run, types.RelayStateSigned, signed.Hash.Hex())

		result, err := r.submitWithRetry(ctx, run, signed)
		if err != nil {
			return nil, err
		}

		switch result.Outcome {
		case types.SubmissionAccepted, types.SubmissionPending:
			r.setSubmission(run, signed.Hash, types.Broadcast)
			r.nonces.Confirm(run.from, signed.Nonce)
			run.hasNonce = false
			r.transition(run, types.RelayStateSubmitted, signed.Hash.Hex())
			return signed, nil

		case types.SubmissionRejected:
			switch result.Reason {
			case types.RejectNonceTooLow:
				if len(run.sent) > 0 {
					landed, err := r.findSent(ctx, run)
					if err != nil {
						return nil, err
					}
					if landed != nil {
						r.setSubmission(run, landed.Hash, types.Broadcast)
						r.nonces.Confirm(run.from, landed.Nonce)
						run.hasNonce = false
						run.logger.Sugar().Infow("Earlier submission reached the network", "nonce", landed.Nonce, "txHash", landed.Hash.Hex())
						r.transition(run, types.RelayStateSubmitted, landed.Hash.Hex())
						return landed, nil
					}
				}
				r.nonces.Discard(run.from, signed.Nonce)
				run.sent = nil
				run.hasNonce = false
				run.logger.Sugar().Warnw("Node reports nonce already used", "nonce", signed.Nonce, "message", result.Message)
				return nil, nil

			case types.RejectUnderpriced:
				feeBumps++
				if feeBumps > r.policy.Retry.MaxFeeBumps {
					r.releaseNonce(run)
					return nil, relayErrors.Rejected(types.RejectUnderpriced,
						fmt.Sprintf("fee bump limit %d reached: %s", r.policy.Retry.MaxFeeBumps, result.Message))
				}
				bumped, err := r.builder.BumpFees(&unsigned.Fees)
				if err != nil {
					r.releaseNonce(run)
					re := relayErrors.Rejected(types.RejectUnderpriced, result.Message)
					re.Cause = err
					return nil, re
				}
				run.logger.Sugar().Infow("Bumping fees for underpriced transaction",
					"nonce", unsigned.Nonce,
					"bump", feeBumps,
					"maxPriorityFeePerGas", bumped.GasTipCap.String(),
					"maxFeePerGas", bumped.GasFeeCap.String(),
				)
				next := *unsigned
				next.Fees = *bumped
				unsigned = &next
				r.metrics.Retry("underpriced")
				r.transition(run, types.RelayStateRetrying, "underpriced")

			default:
				r.releaseNonce(run)
				return nil, relayErrors.Rejected(result.Reason, result.Message)
			}

		default:
			return nil, relayErrors.New(relayErrors.KindInternal, fmt.Sprintf("unexpected submission outcome %q", result.Outcome), result.Err)
		}
	}
}

// findSent looks up every transaction of the run that may have been broadcast
// under the current nonce and returns the one the node knows, if any.
func (r *Relayer) findSent(ctx context.Context, run *relayRun) (*types.SignedTransaction, error) {
	for _, sent := range run.sent {
		start := time.Now()
		res, err := r.node.PollReceipt(ctx, sent.Hash)
		r.metrics.ObserveNodeCall("receipt", start)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx.Err()).WithBroadcast(types.MaybeBroadcast)
			}
			return nil, relayErrors.Network(
				fmt.Sprintf("nonce %d reported used, lookup of %s failed", sent.Nonce, sent.Hash.Hex()), err,
			).WithBroadcast(types.MaybeBroadcast)
		}
		if res.Status == types.ReceiptConfirmed || res.Status == types.ReceiptStillPending {
			return sent, nil
		}
	}
	return nil, nil
}

// submitWithRetry resubmits the same signed bytes on transport failures. Once
// any attempt has left the process the transaction may exist on the network,
// so exhaustion keeps the nonce reserved and reports MaybeBroadcast.
func (r *Relayer) submitWithRetry(ctx context.Context, run *relayRun, signed *types.SignedTransaction) (*types.SubmissionResult, error) {
	b := r.newBackoff()
	for attempt := 1; ; attempt++ {
		if attempt == 1 && ctx.Err() != nil {
			r.releaseNonce(run)
			return nil, cancelled(ctx.Err())
		}
		run.result.Attempts++
		start := time.Now()
		result := r.node.Submit(ctx, signed)
		r.metrics.ObserveNodeCall("submit", start)
		r.metrics.Submission(string(result.Outcome), string(result.Reason))

		if result.Outcome != types.SubmissionNetworkError {
			return result, nil
		}

		r.maybeSent(run, signed)
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err()).WithBroadcast(types.MaybeBroadcast)
		}
		if attempt >= r.policy.Retry.MaxAttempts {
			return nil, relayErrors.Network(
				fmt.Sprintf("submission failed after %d attempts", attempt), result.Err,
			).WithBroadcast(types.MaybeBroadcast)
		}

		delay := b.Duration()
		r.metrics.Retry(string(relayErrors.KindNetwork))
		r.transition(run, types.RelayStateRetrying, "network error")
		run.logger.Sugar().Warnw("Submission failed, resubmitting same transaction",
			"txHash", signed.Hash.Hex(),
			"attempt", attempt,
			"delay", delay,
			"error", result.Message,
		)
		if err := wait(ctx, delay); err != nil {
			return nil, cancelled(err).WithBroadcast(types.MaybeBroadcast)
		}
	}
}

// awaitReceipt polls until the transaction is mined, the receipt budget runs
// out, or ctx is cancelled. Cancellation leaves the action in Submitted.
func (r *Relayer) awaitReceipt(ctx context.Context, run *relayRun, signed *types.SignedTransaction) error {
	deadline := time.NewTimer(r.policy.Timeouts.ReceiptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.policy.Timeouts.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		res, err := r.node.PollReceipt(ctx, signed.Hash)
		r.metrics.ObserveNodeCall("receipt", start)

		switch {
		case err != nil:
			if ctx.Err() == nil {
				run.logger.Sugar().Warnw("Receipt poll failed", "txHash", signed.Hash.Hex(), "error", err)
			}
		case res.Status == types.ReceiptConfirmed:
			if res.Receipt.Status != 1 {
				run.result.Receipt = res.Receipt
				re := relayErrors.New(relayErrors.KindExecutionReverted,
					fmt.Sprintf("transaction %s reverted", signed.Hash.Hex()), nil)
				return r.fail(run, re.WithBroadcast(types.Broadcast))
			}
			r.confirm(run, res.Receipt)
			return nil
		case res.Status == types.ReceiptNotFound:
			run.logger.Debug("Transaction not yet visible to the node", zap.String("txHash", signed.Hash.Hex()))
		}

		select {
		case <-ctx.Done():
			re := cancelled(ctx.Err()).WithState(types.RelayStateSubmitted).WithBroadcast(types.Broadcast)
			run.record.ErrorKind = string(re.Kind)
			run.record.Error = re.Error()
			r.persist(run)
			run.logger.Sugar().Warnw("Stopped watching submitted transaction", "txHash", signed.Hash.Hex())
			return re
		case <-deadline.C:
			re := relayErrors.New(relayErrors.KindConfirmationTimeout,
				fmt.Sprintf("no receipt for %s within %s", signed.Hash.Hex(), r.policy.Timeouts.ReceiptTimeout), nil)
			return r.fail(run, re.WithBroadcast(types.Broadcast))
		case <-ticker.C:
		}
	}
}
