package transactionSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/Layr-Labs/tx-relayer-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// PrivateKeySigner signs with a key held in process memory.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *zap.Logger
}

func NewPrivateKeySigner(privateKey string, logger *zap.Logger) (*PrivateKeySigner, error) {
	key, err := util.StringToECDSAPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	address, err := util.DeriveAddressFromECDSAPrivateKey(key)
	if err != nil {
		return nil, err
	}
	logger.Sugar().Infow("Using private key signer", "address", address.Hex())

	return &PrivateKeySigner{
		privateKey: key,
		address:    address,
		logger:     logger,
	}, nil
}

func (s *PrivateKeySigner) Sign(_ context.Context, tx *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	if err := checkSignable(tx, s.address); err != nil {
		return nil, err
	}

	signed, err := ethereumTypes.SignNewTx(s.privateKey, ethereumTypes.LatestSignerForChainID(tx.ChainID), tx.ToDynamicFeeTx())
	if err != nil {
		return nil, relayErrors.SigningUnavailable("failed to sign transaction", err)
	}
	return toSignedTransaction(signed, tx)
}

func (s *PrivateKeySigner) GetFromAddress() common.Address {
	return s.address
}
