package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Client performs read-only contract calls.
type Client struct {
	caller ethereum.ContractCaller
}

func NewClient(caller ethereum.ContractCaller) *Client {
	return &Client{caller: caller}
}

func (c *Client) call(ctx context.Context, to common.Address, a abi.ABI, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, DecodeError(method, err)
	}
	values, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return values, nil
}

func (c *Client) callUint(ctx context.Context, to common.Address, a abi.ABI, method string, args ...any) (*big.Int, error) {
	values, err := c.call(ctx, to, a, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return v, nil
}

// BalanceOf returns token.balanceOf(owner).
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, ERC20ABI, "balanceOf", owner)
}

// Allowance returns token.allowance(owner, spender).
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, ERC20ABI, "allowance", owner, spender)
}

func (c *Client) Claimable(ctx context.Context, sale, user common.Address) (*big.Int, error) {
	return c.callUint(ctx, sale, SaleABI, "claimable", user)
}

func (c *Client) EndTime(ctx context.Context, sale common.Address) (*big.Int, error) {
	return c.callUint(ctx, sale, SaleABI, "endTime")
}

func (c *Client) CanFinalizeNow(ctx context.Context, sale common.Address) (bool, error) {
	values, err := c.call(ctx, sale, SaleABI, "canFinalizeNow")
	if err != nil {
		return false, err
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, fmt.Errorf("canFinalizeNow: unexpected result type %T", values[0])
	}
	return ok, nil
}

// SoldBy calls one of the zero-argument sold accessors on the sale contract.
func (c *Client) SoldBy(ctx context.Context, sale common.Address, accessor string) (*big.Int, error) {
	if _, ok := SaleABI.Methods[accessor]; !ok {
		return nil, fmt.Errorf("unknown accessor %q", accessor)
	}
	return c.callUint(ctx, sale, SaleABI, accessor)
}
