package relayErrors

import (
	"fmt"

	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/pkg/errors"
)

// Kind classifies a relay failure.
type Kind string

const (
	KindEncoding            Kind = "EncodingError"
	KindContextUnavailable  Kind = "ContextUnavailable"
	KindFeeEstimationFailed Kind = "FeeEstimationFailed"
	KindInvalidTarget       Kind = "InvalidTarget"
	KindInvalidFees         Kind = "InvalidFees"
	KindSigningUnavailable  Kind = "SigningUnavailable"
	KindRejected            Kind = "Rejected"
	KindNetwork             Kind = "NetworkError"
	KindConfirmationTimeout Kind = "ConfirmationTimeout"
	KindExecutionReverted   Kind = "ExecutionReverted"
	KindCancelled           Kind = "Cancelled"
	KindInternal            Kind = "Internal"
)

// RelayError carries the failure kind together with the last known state of the
// action and whether the transaction may have reached the network.
type RelayError struct {
	Kind      Kind
	Message   string
	State     types.RelayState
	Broadcast types.BroadcastStatus
	Reason    types.RejectReason
	Cause     error
}

func New(kind Kind, message string, cause error) *RelayError {
	return &RelayError{
		Kind:      kind,
		Message:   message,
		Broadcast: types.NotBroadcast,
		Cause:     cause,
	}
}

func Encoding(message string, cause error) *RelayError {
	return New(KindEncoding, message, cause)
}

func ContextUnavailable(message string, cause error) *RelayError {
	return New(KindContextUnavailable, message, cause)
}

func FeeEstimationFailed(message string, cause error) *RelayError {
	return New(KindFeeEstimationFailed, message, cause)
}

func InvalidTarget(message string) *RelayError {
	return New(KindInvalidTarget, message, nil)
}

func InvalidFees(message string, cause error) *RelayError {
	return New(KindInvalidFees, message, cause)
}

func SigningUnavailable(message string, cause error) *RelayError {
	return New(KindSigningUnavailable, message, cause)
}

func Network(message string, cause error) *RelayError {
	return New(KindNetwork, message, cause)
}

func Rejected(reason types.RejectReason, message string) *RelayError {
	e := New(KindRejected, message, nil)
	e.Reason = reason
	return e
}

func (e *RelayError) Error() string {
	msg := string(e.Kind)
	if e.Reason != types.RejectNone {
		msg = fmt.Sprintf("%s(%s)", msg, e.Reason)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.State != "" {
		msg = fmt.Sprintf("%s [state=%s broadcast=%s]", msg, e.State, e.Broadcast)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

func (e *RelayError) WithState(state types.RelayState) *RelayError {
	e.State = state
	return e
}

func (e *RelayError) WithBroadcast(b types.BroadcastStatus) *RelayError {
	e.Broadcast = b
	return e
}

// IsRetryable reports whether the orchestrator may retry after this error.
// Transient node and transport faults are retried; nonce-too-low and underpriced
// rejections have their own bounded paths; everything else is final.
func (e *RelayError) IsRetryable() bool {
	switch e.Kind {
	case KindContextUnavailable, KindFeeEstimationFailed, KindNetwork:
		return true
	case KindRejected:
		return e.Reason == types.RejectNonceTooLow || e.Reason == types.RejectUnderpriced
	default:
		return false
	}
}

// KindOf returns the kind of the first RelayError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// AsRelayError returns err as a RelayError, wrapping foreign errors as internal ones.
func AsRelayError(err error) *RelayError {
	if err == nil {
		return nil
	}
	var re *RelayError
	if errors.As(err, &re) {
		return re
	}
	return New(KindInternal, "", err)
}
