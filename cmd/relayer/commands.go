package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Layr-Labs/tx-relayer-go/pkg/buildingBlock"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayErrors"
	"github.com/Layr-Labs/tx-relayer-go/pkg/relayer"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/Layr-Labs/tx-relayer-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// relayOutput is what relay-type commands print.
type relayOutput struct {
	ActionID    string `json:"actionId"`
	TxHash      string `json:"txHash,omitempty"`
	State       string `json:"state"`
	Broadcast   string `json:"broadcast"`
	Nonce       uint64 `json:"nonce"`
	Attempts    int    `json:"attempts"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
	Error       string `json:"error,omitempty"`
}

func newRelayOutput(res *types.RelayResult, err error) *relayOutput {
	out := &relayOutput{
		ActionID:  res.ActionID.String(),
		State:     res.State.String(),
		Broadcast: string(res.Broadcast),
		Nonce:     res.Nonce,
		Attempts:  res.Attempts,
	}
	if res.TxHash != (common.Hash{}) {
		out.TxHash = res.TxHash.Hex()
	}
	if res.Receipt != nil && res.Receipt.BlockNumber != nil {
		out.BlockNumber = res.Receipt.BlockNumber.Uint64()
	}
	if err != nil {
		out.ErrorKind = string(relayErrors.KindOf(err))
		out.Error = err.Error()
	}
	return out
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliArgs passes positional arguments through as strings; the encoder coerces
// them to the method's input types.
func cliArgs(c *cli.Context) []any {
	return util.Map(c.Args().Slice(), func(a string, _ uint64) any { return a })
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// finishRelay prints the outcome and turns a failed relay into a non-zero exit.
func finishRelay(c *cli.Context, res *types.RelayResult, err error) error {
	if res == nil {
		return err
	}
	if perr := printJSON(c, newRelayOutput(res, err)); perr != nil {
		return perr
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("relay %s: %v", res.State, err), 1)
	}
	return nil
}

func relayCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	fees, err := parseFees(c)
	if err != nil {
		return err
	}
	value, err := parseValue(c.String("value"))
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.relayer.Relay(ctx, &relayer.RelayRequest{
		Contract: c.String("contract"),
		Method:   c.String("method"),
		Args:     cliArgs(c),
		Value:    value,
		Fees:     fees,
	})
	return finishRelay(c, res, err)
}

func adjustPositionCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	fees, err := parseFees(c)
	if err != nil {
		return err
	}

	var payload []byte
	switch {
	case c.String("payload") != "":
		payload, err = hexutil.Decode(c.String("payload"))
		if err != nil {
			return fmt.Errorf("invalid --payload: %w", err)
		}
	case c.IsSet("position-change"):
		payload, err = buildingBlock.PerpPositionChange(c.Int64("position-change"))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --payload or --position-change is required")
	}

	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	bb := buildingBlock.NewBuildingBlock(c.String("contract"), rt.relayer, rt.logger)
	res, err := bb.AdjustPosition(ctx, payload, fees)
	return finishRelay(c, res, err)
}

func nativeChainIdCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := buildingBlock.NewBuildingBlock(c.String("contract"), rt.relayer, rt.logger).NativeChainID(ctx)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]string{"nativeChainId": id.String()})
}

func callCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	out, err := rt.relayer.Call(ctx, c.String("contract"), c.String("method"), cliArgs(c))
	if err != nil {
		return err
	}
	return printJSON(c, out)
}

// statusCommand only needs the store, so it skips the node and signer.
func statusCommand(c *cli.Context) error {
	id, err := uuid.Parse(c.String("id"))
	if err != nil {
		return fmt.Errorf("invalid --id: %w", err)
	}

	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg, err := parseRelayerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	store, err := newPersistence(&cfg.Persistence, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	record, err := store.LoadRelayRecord(id)
	if err != nil {
		return fmt.Errorf("failed to load relay record %s: %w", id, err)
	}
	if record == nil {
		return cli.Exit(fmt.Sprintf("relay record %s not found", id), 1)
	}
	return printJSON(c, record)
}
