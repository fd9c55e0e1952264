package pricesource

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const nativeDecimals = 18

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

type Network struct {
	Name           string `mapstructure:"name" json:"name"`
	RPCURL         string `mapstructure:"rpc_url" json:"rpc_url"`
	NativeCurrency string `mapstructure:"native_currency" json:"native_currency"`
}

// ChainClient is the subset of *ethclient.Client the on-chain variant uses.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

func dialEthereum(ctx context.Context, rpcURL string) (ChainClient, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OnChain reads native and ERC20 balances from EVM networks. Clients are dialed
// lazily and kept per network; token decimals are cached since they never change.
type OnChain struct {
	networks map[string]Network
	dial     Dialer
	decimals *lru.Cache
	log      *logrus.Logger

	mu      sync.Mutex
	clients map[string]ChainClient
}

func NewOnChain(networks []Network, dial Dialer, log *logrus.Logger) (*OnChain, error) {
	if dial == nil {
		dial = dialEthereum
	}
	cache, err := lru.New(256)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Network, len(networks))
	for _, n := range networks {
		byName[networkKey(n.Name)] = n
	}
	return &OnChain{
		networks: byName,
		dial:     dial,
		decimals: cache,
		log:      log,
		clients:  map[string]ChainClient{},
	}, nil
}

func networkKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (o *OnChain) Network(name string) (Network, bool) {
	n, ok := o.networks[networkKey(name)]
	return n, ok
}

func (o *OnChain) Observe(ctx context.Context, req Request) (decimal.Decimal, error) {
	n, ok := o.Network(req.Network)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownNetwork, req.Network)
	}
	if !common.IsHexAddress(req.Wallet) {
		return decimal.Zero, fmt.Errorf("%w: wallet %q", ErrInvalidAddress, req.Wallet)
	}
	wallet := common.HexToAddress(req.Wallet)

	client, err := o.client(ctx, n)
	if err != nil {
		return decimal.Zero, err
	}

	if strings.EqualFold(strings.TrimSpace(req.Ticker), n.NativeCurrency) {
		wei, err := client.BalanceAt(ctx, wallet, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("native balance %s on %s: %w", req.Ticker, n.Name, err)
		}
		return decimal.NewFromBigInt(wei, -nativeDecimals), nil
	}

	if !common.IsHexAddress(req.Contract) {
		return decimal.Zero, fmt.Errorf("%w: contract %q for %s", ErrInvalidAddress, req.Contract, req.Ticker)
	}
	token := common.HexToAddress(req.Contract)
	precision, err := o.tokenDecimals(ctx, client, n, token)
	if err != nil {
		return decimal.Zero, err
	}

	data, err := erc20ABI.Pack("balanceOf", wallet)
	if err != nil {
		return decimal.Zero, err
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s on %s: %w", req.Ticker, n.Name, err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) != 1 {
		return decimal.Zero, fmt.Errorf("balanceOf %s on %s: %w: %v", req.Ticker, n.Name, ErrMalformedQuote, err)
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("balanceOf %s on %s: %w", req.Ticker, n.Name, ErrMalformedQuote)
	}
	return decimal.NewFromBigInt(raw, -int32(precision)), nil
}

func (o *OnChain) tokenDecimals(ctx context.Context, client ChainClient, n Network, token common.Address) (uint8, error) {
	key := networkKey(n.Name) + "/" + token.Hex()
	if v, ok := o.decimals.Get(key); ok {
		return v.(uint8), nil
	}
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals of %s on %s: %w", token.Hex(), n.Name, err)
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("decimals of %s on %s: %w: %v", token.Hex(), n.Name, ErrMalformedQuote, err)
	}
	precision, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals of %s on %s: %w", token.Hex(), n.Name, ErrMalformedQuote)
	}
	o.decimals.Add(key, precision)
	return precision, nil
}

func (o *OnChain) client(ctx context.Context, n Network) (ChainClient, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := networkKey(n.Name)
	if c, ok := o.clients[key]; ok {
		return c, nil
	}
	c, err := o.dial(ctx, n.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", n.Name, err)
	}
	o.log.WithField("network", n.Name).Debug("connected to rpc")
	o.clients[key] = c
	return c, nil
}

func (o *OnChain) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, c := range o.clients {
		c.Close()
		delete(o.clients, k)
	}
}

// DefaultNetworks are the public RPC endpoints used when the config file does
// not declare any.
func DefaultNetworks() []Network {
	return []Network{
		{Name: "Ethereum", RPCURL: "https://rpc.mevblocker.io", NativeCurrency: "ETH"},
		{Name: "Binance Smart Chain", RPCURL: "https://bsc-dataseed.binance.org/", NativeCurrency: "BNB"},
		{Name: "Arbitrum", RPCURL: "https://1rpc.io/arb", NativeCurrency: "ETH"},
		{Name: "Base", RPCURL: "https://1rpc.io/base", NativeCurrency: "ETH"},
		{Name: "Linea", RPCURL: "https://linea.drpc.org", NativeCurrency: "ETH"},
		{Name: "Polygon", RPCURL: "https://polygon.api.onfinality.io/public", NativeCurrency: "POL"},
		{Name: "zkSync", RPCURL: "https://rpc.ankr.com/zksync_era", NativeCurrency: "ETH"},
		{Name: "Avalanche", RPCURL: "https://1rpc.io/avax/c", NativeCurrency: "AVAX"},
	}
}
