package web3signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/Layr-Labs/tx-relayer-go/internal/tests"
	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func Test_Client_EthSignTransaction(t *testing.T) {
	key, addr := tests.DevKey(tests.DevAccountPrivateKey1)
	fake := tests.NewFakeWeb3Signer(t, key)

	client, err := NewWeb3SignerClientFromRemoteSignerConfig(&config.RemoteSignerConfig{
		Url:         fake.Server.URL,
		FromAddress: addr.Hex(),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()

	t.Run("Should list the signer account", func(t *testing.T) {
		ok, err := client.HasAccount(ctx, addr.Hex())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.HasAccount(ctx, "0x0000000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should return signed raw bytes", func(t *testing.T) {
		signed, err := client.EthSignTransaction(ctx, addr.Hex(), map[string]interface{}{
			"to":                   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			"value":                "0x0",
			"gas":                  "0x5208",
			"maxPriorityFeePerGas": "0x1",
			"maxFeePerGas":         "0xa",
			"nonce":                "0x3",
			"data":                 "0x",
			"type":                 "0x2",
			"chainId":              "0x7a69",
		})
		require.NoError(t, err)

		raw, err := hexutil.Decode(signed)
		require.NoError(t, err)
		var tx types.Transaction
		require.NoError(t, tx.UnmarshalBinary(raw))
		assert.Equal(t, uint64(3), tx.Nonce())
		assert.Equal(t, big.NewInt(31337), tx.ChainId())

		sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
		require.NoError(t, err)
		assert.Equal(t, addr, sender)
	})

	t.Run("Should surface signer errors", func(t *testing.T) {
		fake.Fail.Store(true)
		defer fake.Fail.Store(false)
		_, err := client.EthSignTransaction(ctx, addr.Hex(), map[string]interface{}{"chainId": "0x1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signing key locked")
	})
}

func Test_NewClient(t *testing.T) {
	_, err := NewClient(&Config{}, zaptest.NewLogger(t))
	require.Error(t, err)

	var signer IWeb3Signer
	signer, err = NewWeb3SignerClientFromRemoteSignerConfig(nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, signer)
}
