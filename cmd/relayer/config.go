package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func parseRelayerConfig(c *cli.Context) (*config.RelayerConfig, error) {
	cfg := &config.RelayerConfig{
		RpcUrl:     c.String("rpc-url"),
		ChainID:    config.ChainId(c.Uint64("chain-id")),
		SignerType: config.SignerType(c.String("signer-type")),
		PrivateKey: c.String("private-key"),
		Persistence: config.PersistenceConfig{
			Type:          config.PersistenceType(c.String("persistence")),
			DataDir:       c.String("data-dir"),
			RedisAddress:  c.String("redis-address"),
			RedisPassword: c.String("redis-password"),
			RedisDB:       c.Int("redis-db"),
		},
		MetricsAddr: c.String("metrics-addr"),
		Debug:       c.Bool("verbose"),
	}

	switch cfg.SignerType {
	case config.SignerType_AWSKMS:
		cfg.AWSKMS = &config.AWSKMSConfig{
			KeyID:    c.String("aws-kms-key-id"),
			Region:   c.String("aws-region"),
			Endpoint: c.String("aws-kms-endpoint"),
		}
	case config.SignerType_Web3Signer:
		cfg.RemoteSigner = &config.RemoteSignerConfig{
			Url:         c.String("remote-signer-url"),
			FromAddress: c.String("from-address"),
		}
	}

	for _, raw := range c.StringSlice("contracts") {
		entry, err := config.ParseContractEntry(raw)
		if err != nil {
			return nil, err
		}
		cfg.Contracts = append(cfg.Contracts, entry)
	}

	policy, err := config.LoadRelayPolicy(c.String("policy-file"))
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	cfg.ResolveLegacyEnv(os.Getenv)
	return cfg, nil
}

// parseFees reads the optional fee flags. It returns nil when none is set so
// the builder estimates everything.
func parseFees(c *cli.Context) (*types.FeeParams, error) {
	gasLimit := c.Uint64("gas-limit")
	maxFee := c.String("max-fee-gwei")
	maxTip := c.String("max-priority-fee-gwei")
	if gasLimit == 0 && maxFee == "" && maxTip == "" {
		return nil, nil
	}

	fees := &types.FeeParams{GasLimit: gasLimit}
	if maxFee != "" {
		wei, err := parseGwei(maxFee)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-fee-gwei: %w", err)
		}
		fees.GasFeeCap = wei
	}
	if maxTip != "" {
		wei, err := parseGwei(maxTip)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-priority-fee-gwei: %w", err)
		}
		fees.GasTipCap = wei
	}
	return fees, nil
}

func parseGwei(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%s is negative", s)
	}
	return config.GweiToWei(d), nil
}

func parseValue(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid --value %q", s)
	}
	return v, nil
}
