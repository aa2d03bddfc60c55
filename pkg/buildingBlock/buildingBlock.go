// Package buildingBlock relays the entry points shared by the building-block
// vaults (base, uniswap and perpetual): adjustPosition(bytes) and the
// nativeChainId() read.
package buildingBlock

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/tx-relayer-go/pkg/relayer"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/Layr-Labs/tx-relayer-go/pkg/util"
	"go.uber.org/zap"
)

const (
	AdjustPositionMethod = "adjustPosition(bytes)"
	NativeChainIDMethod  = "nativeChainId()"
)

// IRelayer is the part of *relayer.Relayer a building block needs.
type IRelayer interface {
	Relay(ctx context.Context, req *relayer.RelayRequest) (*types.RelayResult, error)
	Call(ctx context.Context, contract string, method string, args []any) ([]any, error)
}

type BuildingBlock struct {
	contract string
	relayer  IRelayer
	logger   *zap.Logger
}

// NewBuildingBlock binds a registered contract name (or address) to a relayer.
func NewBuildingBlock(contract string, r IRelayer, logger *zap.Logger) *BuildingBlock {
	return &BuildingBlock{
		contract: contract,
		relayer:  r,
		logger:   logger,
	}
}

// PerpPositionChange packs a signed position change the way the perpetual
// vault decodes it.
func PerpPositionChange(change int64) ([]byte, error) {
	payload, err := util.EncodeInt64(change)
	if err != nil {
		return nil, fmt.Errorf("failed to encode position change %d: %w", change, err)
	}
	return payload, nil
}

func (b *BuildingBlock) AdjustPositionRequest(payload []byte, fees *types.FeeParams) *relayer.RelayRequest {
	return &relayer.RelayRequest{
		Contract: b.contract,
		Method:   AdjustPositionMethod,
		Args:     []any{payload},
		Fees:     fees,
	}
}

// AdjustPosition relays adjustPosition(payload) and waits for the outcome.
func (b *BuildingBlock) AdjustPosition(ctx context.Context, payload []byte, fees *types.FeeParams) (*types.RelayResult, error) {
	b.logger.Sugar().Infow("Relaying adjustPosition",
		"contract", b.contract,
		"payloadBytes", len(payload),
	)
	return b.relayer.Relay(ctx, b.AdjustPositionRequest(payload, fees))
}

// AdjustPerpPosition relays a perpetual vault position change.
func (b *BuildingBlock) AdjustPerpPosition(ctx context.Context, change int64, fees *types.FeeParams) (*types.RelayResult, error) {
	payload, err := PerpPositionChange(change)
	if err != nil {
		return nil, err
	}
	return b.AdjustPosition(ctx, payload, fees)
}

// NativeChainID reads the chain id the contract was deployed for.
func (b *BuildingBlock) NativeChainID(ctx context.Context) (*big.Int, error) {
	out, err := b.relayer.Call(ctx, b.contract, NativeChainIDMethod, nil)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("nativeChainId returned %d values", len(out))
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("nativeChainId returned %T, expected *big.Int", out[0])
	}
	return id, nil
}
