package tests

import "github.com/ethereum/go-ethereum/common"

// Hand-assembled contracts for simulated-chain tests. Each init code copies the
// trailing runtime into memory and returns it.
var (
	// RevertingContractCode reverts on every call.
	RevertingContractCode = common.FromHex("0x600580600b6000396000f3" + "60006000fd")

	// ChainIDContractCode returns block.chainid as a uint256 for every call,
	// so nativeChainId() and any other selector read the same word.
	ChainIDContractCode = common.FromHex("0x600980600b6000396000f3" + "4660005260206000f3")
)

// BuildingBlockABI covers the relayer entry points of the building-block vaults.
const BuildingBlockABI = `[
	{"type":"function","name":"adjustPosition","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"nativeChainId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// TokenABI is a minimal ERC20 surface.
const TokenABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`
