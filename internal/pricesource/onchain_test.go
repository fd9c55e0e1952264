package pricesource

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletA = "0x1111111111111111111111111111111111111111"
	walletB = "0x2222222222222222222222222222222222222222"
	usdc    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

type fakeChain struct {
	mu            sync.Mutex
	native        map[common.Address]*big.Int
	tokens        map[common.Address]*big.Int
	decimals      uint8
	decimalsCalls int
	failBalance   bool
}

func (f *fakeChain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if f.failBalance {
		return nil, errors.New("rpc unavailable")
	}
	if b, ok := f.native[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case bytes.HasPrefix(msg.Data, erc20ABI.Methods["decimals"].ID):
		f.decimalsCalls++
		return erc20ABI.Methods["decimals"].Outputs.Pack(f.decimals)
	case bytes.HasPrefix(msg.Data, erc20ABI.Methods["balanceOf"].ID):
		args, err := erc20ABI.Methods["balanceOf"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		b, ok := f.tokens[owner]
		if !ok {
			b = big.NewInt(0)
		}
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(b)
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeChain) Close() {}

func newTestOnChain(t *testing.T, chain *fakeChain) (*OnChain, *int) {
	t.Helper()
	dials := 0
	o, err := NewOnChain(DefaultNetworks(), func(context.Context, string) (ChainClient, error) {
		dials++
		return chain, nil
	}, quietLogger())
	require.NoError(t, err)
	return o, &dials
}

func TestOnChain_NativeBalance(t *testing.T) {
	oneAndHalfEth, _ := new(big.Int).SetString("1500000000000000000", 10)
	chain := &fakeChain{native: map[common.Address]*big.Int{common.HexToAddress(walletA): oneAndHalfEth}}
	o, dials := newTestOnChain(t, chain)

	bal, err := o.Observe(context.Background(), Request{Ticker: "eth", Wallet: walletA, Network: "ethereum"})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("1.5")), "got %s", bal)

	_, err = o.Observe(context.Background(), Request{Ticker: "ETH", Wallet: walletB, Network: "Ethereum"})
	require.NoError(t, err)
	assert.Equal(t, 1, *dials)
}

func TestOnChain_TokenBalanceUsesDeclaredDecimals(t *testing.T) {
	chain := &fakeChain{
		tokens:   map[common.Address]*big.Int{common.HexToAddress(walletA): big.NewInt(2_500_000), common.HexToAddress(walletB): big.NewInt(1)},
		decimals: 6,
	}
	o, _ := newTestOnChain(t, chain)

	bal, err := o.Observe(context.Background(), Request{Ticker: "USDC", Contract: usdc, Wallet: walletA, Network: "Ethereum"})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("2.5")), "got %s", bal)

	bal, err = o.Observe(context.Background(), Request{Ticker: "USDC", Contract: usdc, Wallet: walletB, Network: "Ethereum"})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("0.000001")), "got %s", bal)

	assert.Equal(t, 1, chain.decimalsCalls)
}

func TestOnChain_Errors(t *testing.T) {
	chain := &fakeChain{failBalance: true}
	o, _ := newTestOnChain(t, chain)
	ctx := context.Background()

	_, err := o.Observe(ctx, Request{Ticker: "ETH", Wallet: walletA, Network: "Solana"})
	assert.ErrorIs(t, err, ErrUnknownNetwork)

	_, err = o.Observe(ctx, Request{Ticker: "ETH", Wallet: "not-an-address", Network: "Ethereum"})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = o.Observe(ctx, Request{Ticker: "USDC", Contract: "", Wallet: walletA, Network: "Ethereum"})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = o.Observe(ctx, Request{Ticker: "ETH", Wallet: walletA, Network: "Ethereum"})
	assert.Error(t, err)
}

func TestOnChain_DialFailure(t *testing.T) {
	o, err := NewOnChain(DefaultNetworks(), func(context.Context, string) (ChainClient, error) {
		return nil, errors.New("no route")
	}, quietLogger())
	require.NoError(t, err)

	_, err = o.Observe(context.Background(), Request{Ticker: "AVAX", Wallet: walletA, Network: "Avalanche"})
	assert.ErrorContains(t, err, "dial Avalanche")
}
