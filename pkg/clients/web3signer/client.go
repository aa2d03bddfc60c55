package web3signer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

type Config struct {
	BaseUrl string
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

func DefaultConfig() *Config {
	return &Config{
		BaseUrl: "http://localhost:9000",
		Timeout: 30 * time.Second,
	}
}

// Client talks to a Web3Signer instance over its Ethereum JSON-RPC endpoint.
type Client struct {
	config *Config
	rpc    *rpc.Client
	logger *zap.Logger
}

// NewClient dials lazily; no request is made until the first call.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseUrl == "" {
		return nil, fmt.Errorf("web3signer base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	rpcClient, err := rpc.DialOptions(context.Background(), cfg.BaseUrl, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create web3signer rpc client: %w", err)
	}

	return &Client{
		config: cfg,
		rpc:    rpcClient,
		logger: logger,
	}, nil
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client from the relayer's
// remote signer section. A nil config falls back to DefaultConfig.
func NewWeb3SignerClientFromRemoteSignerConfig(rsc *config.RemoteSignerConfig, logger *zap.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if rsc != nil && rsc.Url != "" {
		cfg.BaseUrl = rsc.Url
	}
	return NewClient(cfg, logger)
}

func (c *Client) EthAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

func (c *Client) EthSignTransaction(ctx context.Context, from string, transaction map[string]interface{}) (string, error) {
	tx := make(map[string]interface{}, len(transaction)+1)
	for k, v := range transaction {
		tx[k] = v
	}
	tx["from"] = from

	c.logger.Sugar().Debugw("Requesting transaction signature",
		"from", from,
		"nonce", tx["nonce"],
	)

	var signed string
	if err := c.rpc.CallContext(ctx, &signed, "eth_signTransaction", tx); err != nil {
		return "", fmt.Errorf("eth_signTransaction: %w", err)
	}
	if signed == "" {
		return "", fmt.Errorf("eth_signTransaction returned an empty result")
	}
	return signed, nil
}

func (c *Client) EthSign(ctx context.Context, account string, data string) (string, error) {
	var sig string
	if err := c.rpc.CallContext(ctx, &sig, "eth_sign", account, data); err != nil {
		return "", fmt.Errorf("eth_sign: %w", err)
	}
	return sig, nil
}

func (c *Client) HasAccount(ctx context.Context, address string) (bool, error) {
	accounts, err := c.EthAccounts(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range accounts {
		if strings.EqualFold(a, address) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
