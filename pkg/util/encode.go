package util

import "github.com/ethereum/go-ethereum/accounts/abi"

// EncodeInt64 ABI-encodes a single int64 word, the layout a Solidity
// abi.decode(data, (int64)) expects.
func EncodeInt64(v int64) ([]byte, error) {
	int64Type, _ := abi.NewType("int64", "", nil)
	return abi.Arguments{{Type: int64Type}}.Pack(v)
}

// DecodeInt64 reverses EncodeInt64.
func DecodeInt64(data []byte) (int64, error) {
	int64Type, _ := abi.NewType("int64", "", nil)
	out, err := abi.Arguments{{Type: int64Type}}.Unpack(data)
	if err != nil {
		return 0, err
	}
	return out[0].(int64), nil
}
