package util

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// anvil's first dev account
const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestStringToECDSAPrivateKey(t *testing.T) {
	t.Run("Should accept keys with and without prefix", func(t *testing.T) {
		a, err := DeriveAddressFromECDSAPrivateKeyString(devKey)
		require.NoError(t, err)
		b, err := DeriveAddressFromECDSAPrivateKeyString(devKey[2:])
		require.NoError(t, err)
		require.Equal(t, common.HexToAddress(devAddress), a)
		require.Equal(t, a, b)
	})

	t.Run("Should reject malformed keys", func(t *testing.T) {
		for _, k := range []string{"", "0x", "0xzz", "0x1234"} {
			_, err := StringToECDSAPrivateKey(k)
			require.Error(t, err, k)
		}
	})

	t.Run("Should reject a nil key", func(t *testing.T) {
		_, err := DeriveAddressFromECDSAPrivateKey(nil)
		require.Error(t, err)
	})
}

func TestRedactHex(t *testing.T) {
	require.Equal(t, "0xac09...ff80", RedactHex(devKey))
	require.Equal(t, "****", RedactHex("0x1234"))
}

func TestMap(t *testing.T) {
	out := Map([]string{"a", "b"}, func(s string, i uint64) any { return s + string(rune('0'+i)) })
	require.Equal(t, []any{"a0", "b1"}, out)
	require.Empty(t, Map([]int{}, func(v int, _ uint64) int { return v }))
}
