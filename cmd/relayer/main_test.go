package main

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/tx-relayer-go/internal/tests"
	"github.com/Layr-Labs/tx-relayer-go/pkg/config"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"
)

// runWith runs a throwaway app carrying the real flags and hands the context
// of its only subcommand to action.
func runWith(t *testing.T, args []string, action func(c *cli.Context) error) {
	t.Helper()
	app := &cli.App{
		Name:  "relayer",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "probe",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "value"}}, feeFlags()...),
				Action: action,
			},
		},
	}
	require.NoError(t, app.Run(append([]string{"relayer"}, args...)))
}

func Test_ParseRelayerConfig(t *testing.T) {
	t.Run("Should read flags into a valid config", func(t *testing.T) {
		var cfg *config.RelayerConfig
		runWith(t, []string{
			"--rpc-url", "http://localhost:8545",
			"--chain-id", "31337",
			"--private-key", tests.DevAccountPrivateKey1,
			"--contracts", "vault=0x5FbDB2315678afecb367f032d93F642f64180aa3:abi/vault.json",
			"--contracts", "token=0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512:abi/token.json",
			"probe",
		}, func(c *cli.Context) error {
			var err error
			cfg, err = parseRelayerConfig(c)
			return err
		})

		require.NotNil(t, cfg)
		assert.Equal(t, config.ChainId_EthereumAnvil, cfg.ChainID)
		assert.Equal(t, config.SignerType_PrivateKey, cfg.SignerType)
		assert.Equal(t, config.PersistenceType_Memory, cfg.Persistence.Type)
		require.Len(t, cfg.Contracts, 2)
		assert.Equal(t, "vault", cfg.Contracts[0].Name)
		assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), cfg.Contracts[0].Address)
		assert.Equal(t, config.DefaultRelayPolicy(), cfg.Policy)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Should fall back to the legacy environment", func(t *testing.T) {
		t.Setenv(config.EnvRelayerRPCURL, "")
		t.Setenv(config.EnvRelayerPrivateKey, "")
		t.Setenv(config.EnvLegacyWeb3Node, "http://legacy:8545")
		t.Setenv(config.EnvLegacyPrivateKey, tests.DevAccountPrivateKey2)

		var cfg *config.RelayerConfig
		runWith(t, []string{"probe"}, func(c *cli.Context) error {
			var err error
			cfg, err = parseRelayerConfig(c)
			return err
		})
		assert.Equal(t, "http://legacy:8545", cfg.RpcUrl)
		assert.Equal(t, tests.DevAccountPrivateKey2, cfg.PrivateKey)
	})

	t.Run("Should build the web3signer section", func(t *testing.T) {
		var cfg *config.RelayerConfig
		runWith(t, []string{
			"--rpc-url", "http://localhost:8545",
			"--signer-type", "web3signer",
			"--remote-signer-url", "http://localhost:9000",
			"--from-address", tests.DevAccountAddress2,
			"probe",
		}, func(c *cli.Context) error {
			var err error
			cfg, err = parseRelayerConfig(c)
			return err
		})
		require.NotNil(t, cfg.RemoteSigner)
		assert.Nil(t, cfg.AWSKMS)
		assert.Equal(t, "http://localhost:9000", cfg.RemoteSigner.Url)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Should load a policy file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("retry:\n  maxAttempts: 7\n"), 0o600))

		var cfg *config.RelayerConfig
		runWith(t, []string{"--policy-file", path, "probe"}, func(c *cli.Context) error {
			var err error
			cfg, err = parseRelayerConfig(c)
			return err
		})
		assert.Equal(t, 7, cfg.Policy.Retry.MaxAttempts)
	})

	t.Run("Should reject a malformed contract entry", func(t *testing.T) {
		runWith(t, []string{"--contracts", "vault", "probe"}, func(c *cli.Context) error {
			_, err := parseRelayerConfig(c)
			assert.Error(t, err)
			return nil
		})
	})
}

func Test_ParseFees(t *testing.T) {
	t.Run("Should return nil when no fee flag is set", func(t *testing.T) {
		runWith(t, []string{"probe"}, func(c *cli.Context) error {
			fees, err := parseFees(c)
			require.NoError(t, err)
			assert.Nil(t, fees)
			return nil
		})
	})

	t.Run("Should convert gwei amounts", func(t *testing.T) {
		runWith(t, []string{"probe", "--gas-limit", "90000", "--max-fee-gwei", "30.5", "--max-priority-fee-gwei", "1.5"}, func(c *cli.Context) error {
			fees, err := parseFees(c)
			require.NoError(t, err)
			assert.Equal(t, &types.FeeParams{
				GasLimit:  90000,
				GasTipCap: big.NewInt(1_500_000_000),
				GasFeeCap: big.NewInt(30_500_000_000),
			}, fees)
			return nil
		})
	})

	t.Run("Should reject a negative amount", func(t *testing.T) {
		runWith(t, []string{"probe", "--max-fee-gwei", "-1"}, func(c *cli.Context) error {
			_, err := parseFees(c)
			assert.Error(t, err)
			return nil
		})
	})
}

func Test_ParseValue(t *testing.T) {
	v, err := parseValue("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseValue("0x10")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(16), v)

	_, err = parseValue("-5")
	assert.Error(t, err)
}

type stubChain struct {
	id  *big.Int
	err error
}

func (s stubChain) QueryChainID(context.Context) (*big.Int, error) {
	return s.id, s.err
}

func Test_CheckChainID(t *testing.T) {
	l := zaptest.NewLogger(t)
	ctx := context.Background()

	assert.NoError(t, checkChainID(ctx, stubChain{err: errors.New("unused")}, 0, l))
	assert.NoError(t, checkChainID(ctx, stubChain{id: big.NewInt(31337)}, config.ChainId_EthereumAnvil, l))
	assert.Error(t, checkChainID(ctx, stubChain{id: big.NewInt(1)}, config.ChainId_EthereumAnvil, l))
	assert.Error(t, checkChainID(ctx, stubChain{err: errors.New("dial tcp")}, config.ChainId_EthereumAnvil, l))
}

func Test_NewPersistence(t *testing.T) {
	l := zaptest.NewLogger(t)

	t.Run("Should default to memory", func(t *testing.T) {
		store, err := newPersistence(&config.PersistenceConfig{}, l)
		require.NoError(t, err)
		defer store.Close()
		assert.NoError(t, store.HealthCheck())
	})

	t.Run("Should open badger in the data dir", func(t *testing.T) {
		store, err := newPersistence(&config.PersistenceConfig{
			Type:    config.PersistenceType_Badger,
			DataDir: t.TempDir(),
		}, l)
		require.NoError(t, err)
		defer store.Close()
		assert.NoError(t, store.HealthCheck())
	})

	t.Run("Should reject unknown types", func(t *testing.T) {
		_, err := newPersistence(&config.PersistenceConfig{Type: "sqlite"}, l)
		assert.Error(t, err)
	})
}

func Test_StatusCommand(t *testing.T) {
	dir := t.TempDir()
	l := zaptest.NewLogger(t)

	id := uuid.New()
	store, err := newPersistence(&config.PersistenceConfig{Type: config.PersistenceType_Badger, DataDir: dir}, l)
	require.NoError(t, err)
	require.NoError(t, store.SaveRelayRecord(&persistence.RelayRecord{
		ID:        id.String(),
		Contract:  "vault",
		Method:    "adjustPosition(bytes)",
		State:     types.RelayStateConfirmed,
		Broadcast: types.Broadcast,
	}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err = app.Run([]string{"relayer", "--persistence", "badger", "--data-dir", dir, "status", "--id", id.String()})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"state": "confirmed"`)
	assert.Contains(t, out.String(), id.String())
}
