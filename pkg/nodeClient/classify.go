package nodeClient

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	nonceTooLowMessages = []string{
		"nonce too low",
	}
	underpricedMessages = []string{
		"replacement transaction underpriced",
		"transaction underpriced",
		"max fee per gas less than block base fee",
		"fee cap less than block base fee",
		"underpriced",
	}
	insufficientFundsMessages = []string{
		"insufficient funds",
	}
	alreadyKnownMessages = []string{
		"already known",
		"known transaction",
	}
)

func containsAny(msg string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

// ClassifySubmitError maps an eth_sendRawTransaction failure to a submission
// outcome. Messages the node uses to judge a transaction are rejections; an error
// carried by a JSON-RPC error object with any other message is Rejected(Other);
// everything else is a transport failure.
func ClassifySubmitError(err error) (types.SubmissionOutcome, types.RejectReason) {
	if err == nil {
		return types.SubmissionAccepted, types.RejectNone
	}
	if isTransportError(err) {
		return types.SubmissionNetworkError, types.RejectNone
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, alreadyKnownMessages):
		return types.SubmissionAccepted, types.RejectNone
	case containsAny(msg, nonceTooLowMessages):
		return types.SubmissionRejected, types.RejectNonceTooLow
	case containsAny(msg, underpricedMessages):
		return types.SubmissionRejected, types.RejectUnderpriced
	case containsAny(msg, insufficientFundsMessages):
		return types.SubmissionRejected, types.RejectInsufficientFunds
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return types.SubmissionRejected, types.RejectOther
	}
	return types.SubmissionNetworkError, types.RejectNone
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
