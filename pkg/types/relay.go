package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// RelayState is the position of a relay action in the orchestrator state machine.
type RelayState string

const (
	RelayStateRequested RelayState = "requested"
	RelayStateEncoded   RelayState = "encoded"
	RelayStateBuilt     RelayState = "built"
	RelayStateSigned    RelayState = "signed"
	RelayStateSubmitted RelayState = "submitted"
	RelayStateRetrying  RelayState = "retrying"
	RelayStateConfirmed RelayState = "confirmed"
	RelayStateFailed    RelayState = "failed"
)

func (s RelayState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can leave this state.
func (s RelayState) IsTerminal() bool {
	return s == RelayStateConfirmed || s == RelayStateFailed
}

// BroadcastStatus tells a caller whether the transaction may exist on the network
// even though the relay gave up on it.
type BroadcastStatus string

const (
	NotBroadcast   BroadcastStatus = "not_broadcast"
	Broadcast      BroadcastStatus = "broadcast"
	MaybeBroadcast BroadcastStatus = "maybe_broadcast"
)

// Account is the single custody-held account a relayer instance signs for.
type Account struct {
	Address       common.Address
	CredentialRef string
}

// ChainContext is the tracker-owned view of the chain for one account.
type ChainContext struct {
	ChainID   *big.Int
	NextNonce uint64
}

// FeeParams are the EIP-1559 fee fields of a transaction.
type FeeParams struct {
	GasLimit  uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// IsComplete reports whether every fee field is set, i.e. no estimation is needed.
func (f *FeeParams) IsComplete() bool {
	return f != nil && f.GasLimit > 0 && f.GasTipCap != nil && f.GasFeeCap != nil
}

func (f *FeeParams) Copy() *FeeParams {
	if f == nil {
		return nil
	}
	cp := &FeeParams{GasLimit: f.GasLimit}
	if f.GasTipCap != nil {
		cp.GasTipCap = new(big.Int).Set(f.GasTipCap)
	}
	if f.GasFeeCap != nil {
		cp.GasFeeCap = new(big.Int).Set(f.GasFeeCap)
	}
	return cp
}

// UnsignedTransaction is assembled by the transaction builder and consumed exactly
// once by a signer.
type UnsignedTransaction struct {
	From    common.Address
	To      common.Address
	Data    []byte
	Value   *big.Int
	Nonce   uint64
	ChainID *big.Int
	Fees    FeeParams
}

// ToDynamicFeeTx converts the envelope into the go-ethereum EIP-1559 payload.
func (u *UnsignedTransaction) ToDynamicFeeTx() *ethereumTypes.DynamicFeeTx {
	to := u.To
	value := u.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return &ethereumTypes.DynamicFeeTx{
		ChainID:   new(big.Int).Set(u.ChainID),
		Nonce:     u.Nonce,
		GasTipCap: new(big.Int).Set(u.Fees.GasTipCap),
		GasFeeCap: new(big.Int).Set(u.Fees.GasFeeCap),
		Gas:       u.Fees.GasLimit,
		To:        &to,
		Value:     new(big.Int).Set(value),
		Data:      common.CopyBytes(u.Data),
	}
}

// PayloadHash digests everything a signature must bind to apart from the fee
// fields: chain id, target, value and call data.
func (u *UnsignedTransaction) PayloadHash() common.Hash {
	value := u.Value
	if value == nil {
		value = big.NewInt(0)
	}
	chainID := u.ChainID
	if chainID == nil {
		chainID = big.NewInt(0)
	}
	return crypto.Keccak256Hash(
		common.LeftPadBytes(chainID.Bytes(), 32),
		u.To.Bytes(),
		common.LeftPadBytes(value.Bytes(), 32),
		u.Data,
	)
}

// SignedTransaction is the network-ready form of one UnsignedTransaction.
type SignedTransaction struct {
	Raw   []byte
	Hash  common.Hash
	From  common.Address
	Nonce uint64
	Fees  FeeParams
}

type SubmissionOutcome string

const (
	SubmissionAccepted     SubmissionOutcome = "accepted"
	SubmissionRejected     SubmissionOutcome = "rejected"
	SubmissionPending      SubmissionOutcome = "pending"
	SubmissionNetworkError SubmissionOutcome = "network_error"
)

type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectNonceTooLow       RejectReason = "nonce_too_low"
	RejectUnderpriced       RejectReason = "underpriced"
	RejectInsufficientFunds RejectReason = "insufficient_funds"
	RejectOther             RejectReason = "other"
)

// SubmissionResult is the node's judgement on one submitted transaction.
type SubmissionResult struct {
	TxHash  common.Hash
	Outcome SubmissionOutcome
	Reason  RejectReason
	Message string
	Err     error
}

type ReceiptStatus string

const (
	ReceiptConfirmed    ReceiptStatus = "confirmed"
	ReceiptStillPending ReceiptStatus = "still_pending"
	ReceiptNotFound     ReceiptStatus = "not_found"
)

type ReceiptResult struct {
	Status  ReceiptStatus
	Receipt *ethereumTypes.Receipt
}

// RelayResult is what the caller of a relay action gets back, terminal or not.
type RelayResult struct {
	ActionID  uuid.UUID
	TxHash    common.Hash
	State     RelayState
	Nonce     uint64
	Attempts  int
	Broadcast BroadcastStatus
	Receipt   *ethereumTypes.Receipt
}
