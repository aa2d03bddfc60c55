package transactionSigner

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Layr-Labs/tx-relayer-go/internal/aws"
	"github.com/Layr-Labs/tx-relayer-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ITransactionSigner turns an unsigned transaction into network-ready bytes.
// Implementations never retry internally.
type ITransactionSigner interface {
	Sign(ctx context.Context, tx *types.UnsignedTransaction) (*types.SignedTransaction, error)

	// GetFromAddress returns the address that will be used for signing
	GetFromAddress() common.Address
}

// NewTransactionSigner builds the signer backend selected by cfg.SignerType.
func NewTransactionSigner(ctx context.Context, cfg *config.RelayerConfig, logger *zap.Logger) (ITransactionSigner, error) {
	switch cfg.SignerType {
	case config.SignerType_PrivateKey:
		return NewPrivateKeySigner(cfg.PrivateKey, logger)

	case config.SignerType_AWSKMS:
		if cfg.AWSKMS == nil {
			return nil, fmt.Errorf("aws kms config is required")
		}
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWSKMS.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		if arn, err := aws.GetCallerIdentity(ctx, awsCfg); err != nil {
			logger.Sugar().Warnw("Could not resolve AWS caller identity", "error", err)
		} else {
			logger.Sugar().Infow("Using AWS identity", "arn", arn)
		}
		return NewAWSKMSSigner(ctx, aws.NewKMSClient(awsCfg, cfg.AWSKMS.Endpoint), cfg.AWSKMS.KeyID, logger)

	case config.SignerType_Web3Signer:
		if cfg.RemoteSigner == nil {
			return nil, fmt.Errorf("remote signer config is required")
		}
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(cfg.RemoteSigner, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create web3signer client: %w", err)
		}
		return NewWeb3TransactionSigner(client, common.HexToAddress(cfg.RemoteSigner.FromAddress), logger), nil

	default:
		return nil, fmt.Errorf("unsupported signer type %q", cfg.SignerType)
	}
}

func checkSignable(tx *types.UnsignedTransaction, from common.Address) error {
	if tx.From != from {
		return relayErrors.SigningUnavailable(
			fmt.Sprintf("no signing key for %s (signer holds %s)", tx.From.Hex(), from.Hex()), nil)
	}
	if tx.ChainID == nil || !tx.Fees.IsComplete() {
		return relayErrors.New(relayErrors.KindInternal, "transaction is missing chain id or fees", nil)
	}
	return nil
}

// toSignedTransaction checks a signed go-ethereum transaction against the
// request it was produced from.
func toSignedTransaction(signed *ethereumTypes.Transaction, req *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	sender, err := ethereumTypes.Sender(ethereumTypes.LatestSignerForChainID(req.ChainID), signed)
	if err != nil {
		return nil, relayErrors.New(relayErrors.KindInternal, "signature does not recover", err)
	}
	if sender != req.From {
		return nil, relayErrors.New(relayErrors.KindInternal,
			fmt.Sprintf("signature recovers to %s, expected %s", sender.Hex(), req.From.Hex()), nil)
	}
	value := req.Value
	if value == nil {
		value = common.Big0
	}
	if signed.ChainId().Cmp(req.ChainID) != 0 || signed.Nonce() != req.Nonce ||
		signed.To() == nil || *signed.To() != req.To ||
		!bytes.Equal(signed.Data(), req.Data) || signed.Value().Cmp(value) != 0 ||
		signed.Gas() != req.Fees.GasLimit || signed.GasTipCap().Cmp(req.Fees.GasTipCap) != 0 ||
		signed.GasFeeCap().Cmp(req.Fees.GasFeeCap) != 0 {
		return nil, relayErrors.New(relayErrors.KindInternal, "signed transaction does not match the request", nil)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, relayErrors.New(relayErrors.KindInternal, "failed to encode signed transaction", err)
	}
	return &types.SignedTransaction{
		Raw:   raw,
		Hash:  signed.Hash(),
		From:  sender,
		Nonce: signed.Nonce(),
		Fees:  *req.Fees.Copy(),
	}, nil
}
