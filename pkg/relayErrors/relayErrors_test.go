package relayErrors

import (
	"context"
	"fmt"
	"testing"

	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RelayError_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       *RelayError
		retryable bool
	}{
		{"encoding", Encoding("bad args", nil), false},
		{"context unavailable", ContextUnavailable("node down", nil), true},
		{"fee estimation", FeeEstimationFailed("estimate", nil), true},
		{"signing", SigningUnavailable("no key", nil), false},
		{"network", Network("dial", nil), true},
		{"nonce too low", Rejected(types.RejectNonceTooLow, ""), true},
		{"underpriced", Rejected(types.RejectUnderpriced, ""), true},
		{"insufficient funds", Rejected(types.RejectInsufficientFunds, ""), false},
		{"other rejection", Rejected(types.RejectOther, "execution reverted"), false},
		{"timeout", New(KindConfirmationTimeout, "", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
		})
	}
}

func Test_KindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Network("dial tcp", context.DeadlineExceeded))
	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNetwork))
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)

	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
	assert.False(t, IsKind(nil, KindInternal))
}

func Test_RelayError_Message(t *testing.T) {
	err := Rejected(types.RejectInsufficientFunds, "insufficient funds for gas * price + value").
		WithState(types.RelayStateSubmitted).
		WithBroadcast(types.NotBroadcast)

	require.Contains(t, err.Error(), "Rejected(insufficient_funds)")
	require.Contains(t, err.Error(), "state=submitted")

	re := AsRelayError(fmt.Errorf("boom"))
	require.Equal(t, KindInternal, re.Kind)
	require.Nil(t, AsRelayError(nil))
}
