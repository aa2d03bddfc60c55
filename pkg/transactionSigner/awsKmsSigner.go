package transactionSigner

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmsTypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// IKMSClient is the part of the KMS API signing uses; *kms.Client satisfies it.
type IKMSClient interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// AWSKMSSigner signs with a secp256k1 key that never leaves AWS KMS.
type AWSKMSSigner struct {
	client    IKMSClient
	keyID     string
	publicKey *ecdsa.PublicKey
	address   common.Address
	logger    *zap.Logger
}

// NewAWSKMSSigner resolves the key's public half once and derives the address.
func NewAWSKMSSigner(ctx context.Context, client IKMSClient, keyID string, logger *zap.Logger) (*AWSKMSSigner, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyID)
	}
	pub, err := parseECDSAPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyID)
	}
	address := crypto.PubkeyToAddress(*pub)
	logger.Sugar().Infow("Using AWS KMS signer", "keyId", keyID, "address", address.Hex())

	return &AWSKMSSigner{
		client:    client,
		keyID:     keyID,
		publicKey: pub,
		address:   address,
		logger:    logger,
	}, nil
}

func (s *AWSKMSSigner) Sign(ctx context.Context, tx *types.UnsignedTransaction) (*types.SignedTransaction, error) {
	if err := checkSignable(tx, s.address); err != nil {
		return nil, err
	}

	signer := ethereumTypes.LatestSignerForChainID(tx.ChainID)
	unsigned := ethereumTypes.NewTx(tx.ToDynamicFeeTx())
	digest := signer.Hash(unsigned)

	sig, err := s.signDigest(ctx, digest.Bytes())
	if err != nil {
		return nil, relayErrors.SigningUnavailable("aws kms signing failed",
			errors.Wrapf(err, "key %s", s.keyID))
	}

	signed, err := unsigned.WithSignature(signer, sig)
	if err != nil {
		return nil, relayErrors.New(relayErrors.KindInternal, "failed to attach signature", err)
	}
	return toSignedTransaction(signed, tx)
}

func (s *AWSKMSSigner) GetFromAddress() common.Address {
	return s.address
}

// signDigest returns a 65-byte [R || S || V] signature with V in {0, 1}.
func (s *AWSKMSSigner) signDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(digest))
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		SigningAlgorithm: kmsTypes.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      kmsTypes.MessageTypeDigest,
	})
	if err != nil {
		return nil, err
	}

	var der asn1EcSig
	if _, err := asn1.Unmarshal(out.Signature, &der); err != nil {
		return nil, errors.Wrap(err, "failed to decode DER signature")
	}
	r := new(big.Int).SetBytes(der.R.Bytes)
	sv := new(big.Int).SetBytes(der.S.Bytes)

	// Ethereum only accepts the low-S form
	if sv.Cmp(secp256k1HalfN) > 0 {
		sv = new(big.Int).Sub(secp256k1N, sv)
	}

	sig := make([]byte, 65)
	r.FillBytes(sig[0:32])
	sv.FillBytes(sig[32:64])

	for recoveryID := byte(0); recoveryID < 2; recoveryID++ {
		sig[64] = recoveryID
		recovered, err := crypto.SigToPub(digest, sig)
		if err != nil {
			s.logger.Debug("Ecrecover failed", zap.Uint8("recoveryId", recoveryID), zap.Error(err))
			continue
		}
		if recovered.X.Cmp(s.publicKey.X) == 0 && recovered.Y.Cmp(s.publicKey.Y) == 0 {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// parseECDSAPublicKey parses the DER SubjectPublicKeyInfo KMS returns.
func parseECDSAPublicKey(derBytes []byte) (*ecdsa.PublicKey, error) {
	var spki asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
}
