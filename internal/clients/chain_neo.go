package clients

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// NeoChainClient is the default ChainClient, backed by a Neo N3 RPC
// node. It only ever reads balances: the runtime has no need to sign
// or broadcast transactions for itself.
type NeoChainClient struct {
	rpc             *rpcclient.Client
	creditTokenHash util.Uint160
	usdcTokenHash   util.Uint160
}

// NewNeoChainClient dials the given RPC endpoint and resolves the
// configured NEP-17 token script hashes.
func NewNeoChainClient(ctx context.Context, rpcURL string, timeout time.Duration, creditTokenHash, usdcTokenHash string) (*NeoChainClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("chain RPC URL required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := rpcclient.New(dialCtx, rpcURL, rpcclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("dial neo rpc: %w", err)
	}

	credit, err := util.Uint160DecodeStringLE(trim0x(creditTokenHash))
	if err != nil {
		return nil, fmt.Errorf("parse credit token hash: %w", err)
	}
	usdc, err := util.Uint160DecodeStringLE(trim0x(usdcTokenHash))
	if err != nil {
		return nil, fmt.Errorf("parse usdc token hash: %w", err)
	}

	return &NeoChainClient{rpc: client, creditTokenHash: credit, usdcTokenHash: usdc}, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// GetCredits reads the automaton's credit-token NEP-17 balance, as a
// whole-unit integer (the credit token has zero decimals).
func (c *NeoChainClient) GetCredits(ctx context.Context, addr string) (int64, error) {
	amount, err := c.balanceOf(addr, c.creditTokenHash)
	if err != nil {
		return 0, err
	}
	return amount.Int64(), nil
}

// GetUSDCBalance reads the automaton's USDC-equivalent NEP-17 balance,
// scaled down from USDC's 6 decimals to a float.
func (c *NeoChainClient) GetUSDCBalance(ctx context.Context, addr string) (float64, error) {
	amount, err := c.balanceOf(addr, c.usdcTokenHash)
	if err != nil {
		return 0, err
	}
	f := new(big.Float).SetInt(amount)
	f.Quo(f, big.NewFloat(1_000_000))
	result, _ := f.Float64()
	return result, nil
}

// balanceOf calls getnep17balances for address and returns the amount
// held of the given token, or zero if the address holds none.
func (c *NeoChainClient) balanceOf(addr string, token util.Uint160) (*big.Int, error) {
	hash, err := address160(addr)
	if err != nil {
		return nil, err
	}

	balances, err := c.rpc.GetNEP17Balances(hash)
	if err != nil {
		return nil, fmt.Errorf("getnep17balances: %w", err)
	}

	for _, b := range balances.Balances {
		if b.Asset.Equals(token) {
			amount, ok := new(big.Int).SetString(b.Amount, 10)
			if !ok {
				return nil, fmt.Errorf("parse nep17 amount %q", b.Amount)
			}
			return amount, nil
		}
	}
	return big.NewInt(0), nil
}

func address160(addr string) (util.Uint160, error) {
	hash, err := address.StringToUint160(addr)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("parse address %q: %w", addr, err)
	}
	return hash, nil
}
