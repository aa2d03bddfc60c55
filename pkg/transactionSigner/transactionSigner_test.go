package transactionSigner

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/tx-relayer-go/internal/tests"
	"github.com/Layr-Labs/tx-relayer-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func unsignedTx(from common.Address, nonce uint64) *types.UnsignedTransaction {
	return &types.UnsignedTransaction{
		From:    from,
		To:      common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Data:    common.FromHex("0xa9059cbb"),
		Value:   big.NewInt(0),
		Nonce:   nonce,
		ChainID: big.NewInt(31337),
		Fees: types.FeeParams{
			GasLimit:  60_000,
			GasTipCap: big.NewInt(1_000_000_000),
			GasFeeCap: big.NewInt(3_000_000_000),
		},
	}
}

func assertSignedBy(t *testing.T, signed *types.SignedTransaction, req *types.UnsignedTransaction) {
	t.Helper()
	var tx ethereumTypes.Transaction
	require.NoError(t, tx.UnmarshalBinary(signed.Raw))
	assert.Equal(t, tx.Hash(), signed.Hash)
	assert.Equal(t, uint8(ethereumTypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, req.ChainID, tx.ChainId())
	assert.Equal(t, req.Nonce, signed.Nonce)

	sender, err := ethereumTypes.Sender(ethereumTypes.LatestSignerForChainID(req.ChainID), &tx)
	require.NoError(t, err)
	assert.Equal(t, req.From, sender)
	assert.Equal(t, req.From, signed.From)

	// a signature for one chain does not verify on another
	_, err = ethereumTypes.Sender(ethereumTypes.LatestSignerForChainID(big.NewInt(1)), &tx)
	assert.Error(t, err)
}

func Test_PrivateKeySigner(t *testing.T) {
	l := zaptest.NewLogger(t)
	signer, err := NewPrivateKeySigner(tests.DevAccountPrivateKey1, l)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(tests.DevAccountAddress1), signer.GetFromAddress())

	t.Run("Should sign an EIP-1559 transaction bound to the chain", func(t *testing.T) {
		req := unsignedTx(signer.GetFromAddress(), 4)
		signed, err := signer.Sign(context.Background(), req)
		require.NoError(t, err)
		assertSignedBy(t, signed, req)
	})

	t.Run("Should refuse another account", func(t *testing.T) {
		_, err := signer.Sign(context.Background(), unsignedTx(common.HexToAddress(tests.DevAccountAddress2), 0))
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindSigningUnavailable))
	})

	t.Run("Should reject bad keys", func(t *testing.T) {
		_, err := NewPrivateKeySigner("0x1234", l)
		require.Error(t, err)
	})
}

// fakeKMS signs with a local key and answers in the DER formats KMS uses.
type fakeKMS struct {
	key     *ecdsa.PrivateKey
	highS   bool
	signErr error
	signs   int
}

func (f *fakeKMS) GetPublicKey(_ context.Context, _ *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	pub := crypto.FromECDSAPub(&f.key.PublicKey)
	der, err := asn1.Marshal(asn1EcPublicKey{
		EcPublicKeyInfo: asn1EcPublicKeyInfo{
			Algorithm:  asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1},
			Parameters: asn1.ObjectIdentifier{1, 3, 132, 0, 10},
		},
		PublicKey: asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
	})
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{PublicKey: der}, nil
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.signs++
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := crypto.Sign(in.Message, f.key)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.highS {
		s = new(big.Int).Sub(secp256k1N, s)
	}
	der, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: der}, nil
}

func Test_AWSKMSSigner(t *testing.T) {
	l := zaptest.NewLogger(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fake := &fakeKMS{key: key}

	signer, err := NewAWSKMSSigner(context.Background(), fake, "alias/relayer", l)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.GetFromAddress())

	t.Run("Should sign with the recovered recovery id", func(t *testing.T) {
		for nonce := uint64(0); nonce < 8; nonce++ {
			req := unsignedTx(signer.GetFromAddress(), nonce)
			signed, err := signer.Sign(context.Background(), req)
			require.NoError(t, err)
			assertSignedBy(t, signed, req)
		}
	})

	t.Run("Should normalise high-S signatures", func(t *testing.T) {
		fake.highS = true
		defer func() { fake.highS = false }()
		req := unsignedTx(signer.GetFromAddress(), 9)
		signed, err := signer.Sign(context.Background(), req)
		require.NoError(t, err)
		assertSignedBy(t, signed, req)
	})

	t.Run("Should report KMS failures as signing unavailable", func(t *testing.T) {
		fake.signErr = errors.New("AccessDeniedException")
		defer func() { fake.signErr = nil }()
		_, err := signer.Sign(context.Background(), unsignedTx(signer.GetFromAddress(), 1))
		require.Error(t, err)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindSigningUnavailable))
		assert.Contains(t, err.Error(), "AccessDeniedException")
	})
}

func Test_Web3TransactionSigner(t *testing.T) {
	l := zaptest.NewLogger(t)
	key, addr := tests.DevKey(tests.DevAccountPrivateKey2)
	fake := tests.NewFakeWeb3Signer(t, key)

	client, err := web3signer.NewClient(&web3signer.Config{BaseUrl: fake.Server.URL}, l)
	require.NoError(t, err)
	defer client.Close()
	signer := NewWeb3TransactionSigner(client, addr, l)

	t.Run("Should return verified signed bytes", func(t *testing.T) {
		req := unsignedTx(addr, 11)
		signed, err := signer.Sign(context.Background(), req)
		require.NoError(t, err)
		assertSignedBy(t, signed, req)
	})

	t.Run("Should reject a signature for the wrong chain", func(t *testing.T) {
		fake.SignChainID.Store(big.NewInt(1))
		defer fake.SignChainID.Store(nil)
		_, err := signer.Sign(context.Background(), unsignedTx(addr, 12))
		require.Error(t, err)
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindInternal))
	})

	t.Run("Should map signer errors to signing unavailable", func(t *testing.T) {
		fake.Fail.Store(true)
		defer fake.Fail.Store(false)
		_, err := signer.Sign(context.Background(), unsignedTx(addr, 13))
		assert.True(t, relayErrors.IsKind(err, relayErrors.KindSigningUnavailable))
	})
}

func Test_NewTransactionSigner(t *testing.T) {
	l := zaptest.NewLogger(t)

	signer, err := NewTransactionSigner(context.Background(), &config.RelayerConfig{
		SignerType: config.SignerType_PrivateKey,
		PrivateKey: tests.DevAccountPrivateKey1,
	}, l)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(tests.DevAccountAddress1), signer.GetFromAddress())

	key, addr := tests.DevKey(tests.DevAccountPrivateKey2)
	fake := tests.NewFakeWeb3Signer(t, key)
	signer, err = NewTransactionSigner(context.Background(), &config.RelayerConfig{
		SignerType:   config.SignerType_Web3Signer,
		RemoteSigner: &config.RemoteSignerConfig{Url: fake.Server.URL, FromAddress: addr.Hex()},
	}, l)
	require.NoError(t, err)
	assert.Equal(t, addr, signer.GetFromAddress())

	_, err = NewTransactionSigner(context.Background(), &config.RelayerConfig{SignerType: "ledger"}, l)
	require.Error(t, err)
}
