package tests

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"go.uber.org/zap"
)

type AnvilConfig struct {
	PortNumber string
	ChainId    string
	BlockTime  string
}

func DefaultAnvilConfig() *AnvilConfig {
	return &AnvilConfig{
		PortNumber: "8545",
		ChainId:    "31337",
		BlockTime:  "1",
	}
}

func (c *AnvilConfig) RpcUrl() string {
	return fmt.Sprintf("http://127.0.0.1:%s", c.PortNumber)
}

// StartAnvil launches a local anvil node and waits until it serves blocks.
// Tests calling it are skipped when anvil is not installed.
func StartAnvil(t *testing.T, ctx context.Context, cfg *AnvilConfig, l *zap.Logger) *exec.Cmd {
	t.Helper()
	if _, err := exec.LookPath("anvil"); err != nil {
		t.Skip("anvil not installed")
	}

	args := []string{
		"--chain-id", cfg.ChainId,
		"--port", cfg.PortNumber,
		"--block-time", cfg.BlockTime,
	}
	cmd := exec.CommandContext(ctx, "anvil", args...)
	cmd.Stderr = os.Stderr
	if os.Getenv("JOIN_ANVIL_OUTPUT") == "true" {
		cmd.Stdout = os.Stdout
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start anvil: %v", err)
	}
	t.Cleanup(func() {
		if err := KillAnvil(cmd); err != nil {
			t.Logf("Warning: %v", err)
		}
	})

	client := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
		BaseUrl:   cfg.RpcUrl(),
		BlockType: ethereum.BlockType_Latest,
	}, l)
	if err := WaitForAnvil(ctx, client, 10); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func WaitForAnvil(ctx context.Context, ethereumClient ethereum.Client, attempts int) error {
	for i := 1; i <= attempts; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("anvil not ready: %w", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
		if _, err := ethereumClient.GetLatestBlock(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("anvil not ready after %d attempts", attempts)
}

func KillAnvil(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("anvil command is not running")
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill anvil process: %w", err)
	}
	_ = cmd.Wait()
	return nil
}
