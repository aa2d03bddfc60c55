package abiEncoder

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// coerce converts v into the exact Go value the ABI packer expects for t.
func coerce(t abi.Type, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("nil value for %s", t.String())
	}
	switch t.T {
	case abi.IntTy, abi.UintTy:
		return coerceInteger(t, v)
	case abi.BoolTy:
		return coerceBool(v)
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case abi.AddressTy:
		return coerceAddress(v)
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy, abi.HashTy:
		return coerceFixedBytes(t, v)
	case abi.SliceTy, abi.ArrayTy:
		return coerceList(t, v)
	case abi.TupleTy:
		return coerceTuple(t, v)
	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

func coerceInteger(t abi.Type, v any) (any, error) {
	x, err := toBigInt(v)
	if err != nil {
		return nil, err
	}
	if t.T == abi.UintTy {
		if err := checkUintWidth(x, t.Size); err != nil {
			return nil, err
		}
	} else if err := checkIntWidth(x, t.Size); err != nil {
		return nil, err
	}

	target := t.GetType()
	if target == bigIntType {
		return x, nil
	}
	rv := reflect.New(target).Elem()
	if t.T == abi.UintTy {
		rv.SetUint(x.Uint64())
	} else {
		rv.SetInt(x.Int64())
	}
	return rv.Interface(), nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil *big.Int")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case *uint256.Int:
		if x == nil {
			return nil, fmt.Errorf("nil *uint256.Int")
		}
		return x.ToBig(), nil
	case uint256.Int:
		return x.ToBig(), nil
	case decimal.Decimal:
		if !x.IsInteger() {
			return nil, fmt.Errorf("%s is not an integer", x.String())
		}
		return x.BigInt(), nil
	case json.Number:
		return parseBigInt(x.String())
	case string:
		return parseBigInt(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("cannot use %T as an integer", v)
}

// parseBigInt accepts decimal or 0x-prefixed hex, optionally negative.
func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")

	base := 10
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base = 16
		digits = digits[2:]
	}
	if digits == "" {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	x, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		x.Neg(x)
	}
	return x, nil
}

func checkUintWidth(x *big.Int, bits int) error {
	if x.Sign() < 0 {
		return fmt.Errorf("negative value %s for uint%d", x.String(), bits)
	}
	u, overflow := uint256.FromBig(x)
	if overflow || u.BitLen() > bits {
		return fmt.Errorf("value %s overflows uint%d", x.String(), bits)
	}
	return nil
}

func checkIntWidth(x *big.Int, bits int) error {
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	minV := new(big.Int).Neg(limit)
	maxV := new(big.Int).Sub(limit, big.NewInt(1))
	if x.Cmp(minV) < 0 || x.Cmp(maxV) > 0 {
		return fmt.Errorf("value %s overflows int%d", x.String(), bits)
	}
	return nil
}

func coerceBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", x)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected bool, got %T", v)
}

func coerceAddress(v any) (any, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case *common.Address:
		if x == nil {
			return nil, fmt.Errorf("nil address")
		}
		return *x, nil
	case string:
		s := strings.TrimSpace(x)
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", x)
		}
		return common.HexToAddress(s), nil
	}
	b, err := toBytes(v)
	if err != nil {
		return nil, fmt.Errorf("expected address, got %T", v)
	}
	if len(b) != common.AddressLength {
		return nil, fmt.Errorf("address must be %d bytes, got %d", common.AddressLength, len(b))
	}
	return common.BytesToAddress(b), nil
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return common.CopyBytes(x), nil
	case common.Hash:
		return x.Bytes(), nil
	case hexutil.Bytes:
		return common.CopyBytes(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" || s == "0x" {
			return []byte{}, nil
		}
		if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
			s = "0x" + s
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q: %w", x, err)
		}
		return b, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}

func coerceFixedBytes(t abi.Type, v any) (any, error) {
	b, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	size := t.Size
	if t.T == abi.HashTy {
		size = common.HashLength
	}
	if len(b) > size {
		return nil, fmt.Errorf("%d bytes do not fit in bytes%d", len(b), size)
	}
	rv := reflect.New(t.GetType()).Elem()
	reflect.Copy(rv, reflect.ValueOf(b))
	return rv.Interface(), nil
}

// decodeJSONText turns a textual composite argument into generic values.
func decodeJSONText(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", s, err)
	}
	return out, nil
}

func coerceList(t abi.Type, v any) (any, error) {
	if s, ok := v.(string); ok {
		decoded, err := decodeJSONText(s)
		if err != nil {
			return nil, err
		}
		v = decoded
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected list for %s, got %T", t.String(), v)
	}

	n := rv.Len()
	var out reflect.Value
	if t.T == abi.ArrayTy {
		if n != t.Size {
			return nil, fmt.Errorf("%s needs %d elements, got %d", t.String(), t.Size, n)
		}
		out = reflect.New(t.GetType()).Elem()
	} else {
		out = reflect.MakeSlice(t.GetType(), n, n)
	}

	for i := 0; i < n; i++ {
		elem, err := coerce(*t.Elem, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}

func coerceTuple(t abi.Type, v any) (any, error) {
	if reflect.TypeOf(v) == t.TupleType {
		return v, nil
	}
	if s, ok := v.(string); ok {
		decoded, err := decodeJSONText(s)
		if err != nil {
			return nil, err
		}
		v = decoded
	}

	fields := make([]any, len(t.TupleElems))
	if m, ok := v.(map[string]any); ok {
		for i, name := range t.TupleRawNames {
			fv, ok := m[name]
			if !ok {
				return nil, fmt.Errorf("tuple field %q missing", name)
			}
			fields[i] = fv
		}
	} else {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("expected tuple for %s, got %T", t.String(), v)
		}
		if rv.Len() != len(t.TupleElems) {
			return nil, fmt.Errorf("tuple %s needs %d fields, got %d", t.String(), len(t.TupleElems), rv.Len())
		}
		for i := range fields {
			fields[i] = rv.Index(i).Interface()
		}
	}

	out := reflect.New(t.TupleType).Elem()
	for i, elemType := range t.TupleElems {
		fv, err := coerce(*elemType, fields[i])
		if err != nil {
			return nil, fmt.Errorf("tuple field %d: %w", i, err)
		}
		out.Field(i).Set(reflect.ValueOf(fv))
	}
	return out.Interface(), nil
}
