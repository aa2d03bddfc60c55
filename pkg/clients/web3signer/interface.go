package web3signer

import (
	"context"
)

// IWeb3Signer is the subset of the Web3Signer JSON-RPC surface the relayer uses.
type IWeb3Signer interface {
	// EthAccounts returns the accounts the signer holds keys for (eth_accounts).
	EthAccounts(ctx context.Context) ([]string, error)

	// EthSignTransaction returns the RLP-encoded signed transaction as hex
	// (eth_signTransaction). The transaction is never broadcast by the signer.
	EthSignTransaction(ctx context.Context, from string, transaction map[string]interface{}) (string, error)

	// EthSign signs data with the Ethereum message prefix (eth_sign).
	EthSign(ctx context.Context, account string, data string) (string, error)

	// HasAccount reports whether the signer holds a key for address.
	HasAccount(ctx context.Context, address string) (bool, error)

	Close()
}

var _ IWeb3Signer = (*Client)(nil)
