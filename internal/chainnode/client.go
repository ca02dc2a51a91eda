// Package chainnode is the blockchain node collaborator that supplies
// spendable balances and order-presence checks, adapted from the teacher's
// CLOB execution client balance lookups (exec/client.go's GetBalance /
// getOnChainBalanceFor), generalized from a single collateral balance to a
// per-Asset map and from an HTTP CLOB API to a JSON-RPC ethclient.
package chainnode

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/dexmatcher/types"
)

// ErrConnectionLost wraps any network-level failure talking to the chain
// node, kept distinct from other errors so the account actor can map it to
// its own WavesNodeConnectionBroken error instead of a generic one.
var ErrConnectionLost = errors.New("chain node connection lost")

// wrapConnErr classifies a raw RPC error, tagging anything that looks like a
// transport failure rather than a well-formed RPC rejection.
func wrapConnErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return err
}

// erc20BalanceOfSelector is the first 4 bytes of keccak256("balanceOf(address)"),
// used to hand-build calldata the same way the teacher's signer pads
// uint256 words by hand rather than depending on a generated ABI binding.
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client is the BalanceOracle's and the placement validator's window onto
// the chain.
type Client interface {
	// SpendableBalances returns the requested assets' balances for addr,
	// missing values default to zero by the caller, never here.
	SpendableBalances(ctx context.Context, addr types.Address, assets []types.Asset) (types.AssetMap, error)
	// HasOrder reports whether an order with this id is already present
	// on-chain (replay protection consulted during placement validation).
	HasOrder(ctx context.Context, id types.OrderId) (bool, error)
}

// EthClient is the production Client backed by a JSON-RPC node.
type EthClient struct {
	rpc *ethclient.Client
}

func Dial(rpcURL string) (*EthClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chainnode: dial %s: %w", rpcURL, err)
	}
	log.Info().Str("rpc_url", rpcURL).Msg("⛓️  chain node client connected")
	return &EthClient{rpc: c}, nil
}

func (c *EthClient) SpendableBalances(ctx context.Context, addr types.Address, assets []types.Asset) (types.AssetMap, error) {
	out := make(types.AssetMap, len(assets))
	for _, asset := range assets {
		bal, err := c.balanceOf(ctx, addr, asset)
		if err != nil {
			return nil, err
		}
		out[asset] = bal
	}
	return out.Clean(), nil
}

func (c *EthClient) balanceOf(ctx context.Context, addr types.Address, asset types.Asset) (decimal.Decimal, error) {
	if asset.IsNative() {
		wei, err := c.rpc.BalanceAt(ctx, addr, nil)
		if err != nil {
			return decimal.Zero, wrapConnErr(err)
		}
		return decimal.NewFromBigInt(wei, 0), nil
	}

	tokenAddr := common.HexToAddress(asset.String())
	calldata := append(append([]byte{}, erc20BalanceOfSelector...), padAddress(addr)...)
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &tokenAddr,
		Data: calldata,
	}, nil)
	if err != nil {
		return decimal.Zero, wrapConnErr(err)
	}
	return decimal.NewFromBigInt(new(big.Int).SetBytes(result), 0), nil
}

func (c *EthClient) HasOrder(ctx context.Context, id types.OrderId) (bool, error) {
	_, isPending, err := c.rpc.TransactionByHash(ctx, common.Hash(id))
	if err != nil {
		if err == ethereum.NotFound {
			return false, nil
		}
		return false, wrapConnErr(err)
	}
	return !isPending, nil
}

// padAddress left-pads an address into a 32-byte EVM calldata word, the same
// fixed-width-word convention the teacher's EIP-712 signer uses for its
// uint256 arguments.
func padAddress(addr types.Address) []byte {
	word := make([]byte, 32)
	copy(word[32-len(addr):], addr[:])
	return word
}
