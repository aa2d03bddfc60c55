package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "relayer",
		Usage: "Relay contract calls from a single account",
		Description: `Encodes contract calls, assigns nonces, estimates fees, signs and submits
EIP-1559 transactions and follows them to a receipt.

Contracts are registered with --contracts name=0xaddress:path/to/abi.json and
then addressed by name in every subcommand.`,
		Version: "1.0.0",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			{
				Name:      "relay",
				Usage:     "Relay one contract call and wait for its receipt",
				ArgsUsage: "[args...]",
				Flags: append([]cli.Flag{
					contractFlag(),
					&cli.StringFlag{
						Name:     "method",
						Aliases:  []string{"m"},
						Usage:    "Method name or full signature, e.g. transfer(address,uint256)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "value",
						Usage: "Wei sent with the call",
					},
				}, feeFlags()...),
				Action: relayCommand,
			},
			{
				Name:  "adjust-position",
				Usage: "Relay adjustPosition(bytes) on a building-block vault",
				Flags: append([]cli.Flag{
					contractFlag(),
					&cli.StringFlag{
						Name:  "payload",
						Usage: "Hex encoded adjustPosition payload",
					},
					&cli.Int64Flag{
						Name:  "position-change",
						Usage: "Signed perpetual position change, packed as the payload when --payload is empty",
					},
				}, feeFlags()...),
				Action: adjustPositionCommand,
			},
			{
				Name:   "native-chain-id",
				Usage:  "Read nativeChainId() from a building-block contract",
				Flags:  []cli.Flag{contractFlag()},
				Action: nativeChainIdCommand,
			},
			{
				Name:      "call",
				Usage:     "Perform a read-only contract call",
				ArgsUsage: "[args...]",
				Flags: []cli.Flag{
					contractFlag(),
					&cli.StringFlag{
						Name:     "method",
						Aliases:  []string{"m"},
						Usage:    "Method name or full signature",
						Required: true,
					},
				},
				Action: callCommand,
			},
			{
				Name:  "status",
				Usage: "Print the persisted record of a relay action",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Relay action id",
						Required: true,
					},
				},
				Action: statusCommand,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   fmt.Sprintf("Ethereum RPC endpoint URL (falls back to %s)", config.EnvLegacyWeb3Node),
			EnvVars: []string{config.EnvRelayerRPCURL},
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Expected chain ID, checked against the node: %s", config.GetSupportedChainIDsString()),
			EnvVars: []string{config.EnvRelayerChainID},
		},
		&cli.StringFlag{
			Name:    "signer-type",
			Usage:   "Signer backend: privateKey, awsKms or web3signer",
			Value:   string(config.SignerType_PrivateKey),
			EnvVars: []string{config.EnvRelayerSignerType},
		},
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   fmt.Sprintf("Hex private key for the privateKey signer (falls back to %s)", config.EnvLegacyPrivateKey),
			EnvVars: []string{config.EnvRelayerPrivateKey},
		},
		&cli.StringFlag{
			Name:    "aws-kms-key-id",
			Usage:   "AWS KMS key id or ARN for the awsKms signer",
			EnvVars: []string{config.EnvRelayerAWSKMSKeyID},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region for the awsKms signer",
			EnvVars: []string{config.EnvRelayerAWSRegion},
		},
		&cli.StringFlag{
			Name:  "aws-kms-endpoint",
			Usage: "Override the KMS endpoint, e.g. for localstack",
		},
		&cli.StringFlag{
			Name:    "remote-signer-url",
			Usage:   "Web3Signer URL for the web3signer signer",
			EnvVars: []string{config.EnvRelayerRemoteSignerURL},
		},
		&cli.StringFlag{
			Name:    "from-address",
			Usage:   "Account the web3signer signer signs for",
			EnvVars: []string{config.EnvRelayerFromAddress},
		},
		&cli.StringFlag{
			Name:    "policy-file",
			Usage:   "YAML relay policy (retries, fees, timeouts, nonce, rate limit)",
			EnvVars: []string{config.EnvRelayerPolicyFile},
		},
		&cli.StringFlag{
			Name:    "persistence",
			Usage:   "Relay state store: memory, badger or redis",
			Value:   string(config.PersistenceType_Memory),
			EnvVars: []string{config.EnvRelayerPersistence},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Badger data directory",
			EnvVars: []string{config.EnvRelayerDataDir},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis host:port",
			EnvVars: []string{config.EnvRelayerRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvRelayerRedisPassword},
		},
		&cli.IntFlag{
			Name:  "redis-db",
			Usage: "Redis database number",
		},
		&cli.StringSliceFlag{
			Name:    "contracts",
			Usage:   "Contract binding name=0xaddress:path/to/abi.json, repeatable",
			EnvVars: []string{config.EnvRelayerContracts},
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Serve prometheus metrics on this address while the command runs, e.g. :9090",
			EnvVars: []string{config.EnvRelayerMetricsAddr},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"debug"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvRelayerDebug},
		},
	}
}

func contractFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "contract",
		Aliases:  []string{"c"},
		Usage:    "Registered contract name or address",
		Required: true,
	}
}

func feeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:  "gas-limit",
			Usage: "Gas limit; estimated when zero",
		},
		&cli.StringFlag{
			Name:  "max-fee-gwei",
			Usage: "Max fee per gas in gwei; estimated when empty",
		},
		&cli.StringFlag{
			Name:  "max-priority-fee-gwei",
			Usage: "Max priority fee per gas in gwei; estimated when empty",
		},
	}
}
