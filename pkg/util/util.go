package util

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StringToECDSAPrivateKey parses a hex secp256k1 key, with or without 0x.
func StringToECDSAPrivateKey(pk string) (*ecdsa.PrivateKey, error) {
	pk = strings.TrimPrefix(strings.TrimSpace(pk), "0x")
	if pk == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(pk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

func DeriveAddressFromECDSAPrivateKey(pk *ecdsa.PrivateKey) (common.Address, error) {
	if pk == nil {
		return common.Address{}, fmt.Errorf("private key is nil")
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func DeriveAddressFromECDSAPrivateKeyString(pk string) (common.Address, error) {
	key, err := StringToECDSAPrivateKey(pk)
	if err != nil {
		return common.Address{}, err
	}
	return DeriveAddressFromECDSAPrivateKey(key)
}

// RedactHex keeps the first and last four characters of a secret.
func RedactHex(s string) string {
	s = strings.TrimPrefix(s, "0x")
	if len(s) <= 8 {
		return "****"
	}
	return "0x" + s[:4] + "..." + s[len(s)-4:]
}

// Map applies mapper to every element, passing its index.
func Map[A any, B any](coll []A, mapper func(i A, index uint64) B) []B {
	out := make([]B, len(coll))
	for i, item := range coll {
		out[i] = mapper(item, uint64(i))
	}
	return out
}
