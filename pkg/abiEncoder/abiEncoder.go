// Package abiEncoder turns (method, arguments) pairs into contract call data.
// Every function here is pure and safe for concurrent use.
package abiEncoder

import (
	"fmt"

	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// EncodeCall returns selector ‖ ABI-encoded arguments.
func EncodeCall(method *MethodDescriptor, args ...any) ([]byte, error) {
	if method == nil {
		return nil, relayErrors.Encoding("no method given", nil)
	}
	coerced, err := CoerceArgs(method.Inputs, args)
	if err != nil {
		return nil, relayErrors.Encoding(method.Signature, err)
	}
	packed, err := method.Inputs.Pack(coerced...)
	if err != nil {
		return nil, relayErrors.Encoding(method.Signature, err)
	}

	data := make([]byte, 0, 4+len(packed))
	data = append(data, method.Selector[:]...)
	return append(data, packed...), nil
}

// CoerceArgs converts loosely typed values into the types the packer expects.
func CoerceArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, input := range inputs {
		v, err := coerce(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, input.Type.String(), input.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseArgs converts textual arguments, as given on a command line, into typed
// values. Arrays and tuples are written as JSON arrays.
func ParseArgs(method *MethodDescriptor, raw []string) ([]any, error) {
	if method == nil {
		return nil, relayErrors.Encoding("no method given", nil)
	}
	args := make([]any, len(raw))
	for i, r := range raw {
		args[i] = r
	}
	out, err := CoerceArgs(method.Inputs, args)
	if err != nil {
		return nil, relayErrors.Encoding(method.Signature, err)
	}
	return out, nil
}

// DecodeOutputs unpacks eth_call return data.
func DecodeOutputs(method *MethodDescriptor, data []byte) ([]any, error) {
	if len(method.Outputs) == 0 {
		return []any{}, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty return data for %s", method.Signature)
	}
	values, err := method.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output of %s: %w", method.Signature, err)
	}
	return values, nil
}
