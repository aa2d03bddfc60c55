package transactionSigner

import (
	"context"

	"github.com/Layr-Labs/tx-relayer-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Web3TransactionSigner delegates signing to a remote Web3Signer service.
type Web3TransactionSigner struct {
	logger           *zap.Logger
	web3SignerClient web3signer.IWeb3Signer
	fromAddress      common.Address
}

func NewWeb3TransactionSigner(web3SignerClient web3signer.IWeb3Signer, fromAddress common.Address, logger *zap.Logger) *Web3TransactionSigner {
	return &Web3TransactionSigner{
		logger:           logger,
		web3SignerClient: web3SignerClient,
		fromAddress:      fromAddress,
	}
}

func (w3s *Web3TransactionSigner) Sign(ctx context.Context, tx *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	if err := checkSignable(tx, w3s.fromAddress); err != nil {
		return nil, err
	}

	value := tx.Value
	if value == nil {
		value = common.Big0
	}
	txData := map[string]interface{}{
		"to":                   tx.To.Hex(),
		"value":                hexutil.EncodeBig(value),
		"gas":                  hexutil.EncodeUint64(tx.Fees.GasLimit),
		"maxPriorityFeePerGas": hexutil.EncodeBig(tx.Fees.GasTipCap),
		"maxFeePerGas":         hexutil.EncodeBig(tx.Fees.GasFeeCap),
		"nonce":                hexutil.EncodeUint64(tx.Nonce),
		"data":                 hexutil.Encode(tx.Data),
		"type":                 "0x2",
		"chainId":              hexutil.EncodeBig(tx.ChainID),
	}

	signedTxHex, err := w3s.web3SignerClient.EthSignTransaction(ctx, w3s.fromAddress.Hex(), txData)
	if err != nil {
		return nil, relayErrors.SigningUnavailable("web3signer rejected the signing request", err)
	}

	signedTxBytes, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return nil, relayErrors.New(relayErrors.KindInternal, "failed to decode signed transaction", err)
	}
	var signedTx ethereumTypes.Transaction
	if err := signedTx.UnmarshalBinary(signedTxBytes); err != nil {
		return nil, relayErrors.New(relayErrors.KindInternal, "failed to unmarshal signed transaction", err)
	}

	w3s.logger.Debug("Transaction signed by web3signer",
		zap.String("txHash", signedTx.Hash().Hex()),
		zap.Uint64("nonce", signedTx.Nonce()),
	)
	return toSignedTransaction(&signedTx, tx)
}

// GetFromAddress returns the address that will be used for signing
func (w3s *Web3TransactionSigner) GetFromAddress() common.Address {
	return w3s.fromAddress
}
