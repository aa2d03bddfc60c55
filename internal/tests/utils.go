package tests

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known anvil/hardhat development accounts.
const (
	DevAccountPrivateKey1 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	DevAccountAddress1    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	DevAccountPrivateKey2 = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	DevAccountAddress2    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// DevKey returns the parsed key and address of a development account.
func DevKey(hexKey string) (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.HexToECDSA(hexKey[2:])
	if err != nil {
		panic(err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}
