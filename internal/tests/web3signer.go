package tests

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// FakeWeb3Signer serves the eth_accounts and eth_signTransaction methods of
// Web3Signer, signing with an in-memory key.
type FakeWeb3Signer struct {
	Server *httptest.Server
	Key    *ecdsa.PrivateKey
	// SignChainID, when set, replaces the requested chain id.
	SignChainID atomic.Pointer[big.Int]
	// Fail makes every sign request return a JSON-RPC error.
	Fail  atomic.Bool
	Calls atomic.Int32
}

type rpcReq struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type signTxParams struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  hexutil.Uint64  `json:"gas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

func NewFakeWeb3Signer(t *testing.T, key *ecdsa.PrivateKey) *FakeWeb3Signer {
	t.Helper()
	f := &FakeWeb3Signer{Key: key}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeWeb3Signer) Address() common.Address {
	return crypto.PubkeyToAddress(f.Key.PublicKey)
}

func (f *FakeWeb3Signer) handle(w http.ResponseWriter, r *http.Request) {
	f.Calls.Add(1)
	var req rpcReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	result, errMsg := f.dispatch(&req)
	if errMsg != "" {
		resp["error"] = map[string]any{"code": -32000, "message": errMsg}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeWeb3Signer) dispatch(req *rpcReq) (any, string) {
	switch req.Method {
	case "eth_accounts":
		return []string{strings.ToLower(f.Address().Hex())}, ""
	case "eth_signTransaction":
		if f.Fail.Load() {
			return nil, "signing key locked"
		}
		if len(req.Params) != 1 {
			return nil, "expected one parameter"
		}
		var p signTxParams
		if err := json.Unmarshal(req.Params[0], &p); err != nil {
			return nil, err.Error()
		}
		if p.From != f.Address() {
			return nil, "no key for account " + p.From.Hex()
		}
		chainID := (*big.Int)(p.ChainID)
		if override := f.SignChainID.Load(); override != nil {
			chainID = override
		}
		value := big.NewInt(0)
		if p.Value != nil {
			value = (*big.Int)(p.Value)
		}
		tx, err := types.SignNewTx(f.Key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     uint64(p.Nonce),
			GasTipCap: (*big.Int)(p.MaxPriorityFeePerGas),
			GasFeeCap: (*big.Int)(p.MaxFeePerGas),
			Gas:       uint64(p.Gas),
			To:        p.To,
			Value:     value,
			Data:      p.Data,
		})
		if err != nil {
			return nil, err.Error()
		}
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, err.Error()
		}
		return hexutil.Encode(raw), ""
	default:
		return nil, "method not supported: " + req.Method
	}
}
