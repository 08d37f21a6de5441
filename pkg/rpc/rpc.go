package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"presale/pkg/models"
)

var (
	DialTimeout      = 10 * time.Second
	LatencyTimeout   = 5 * time.Second
	ReceiptInterval  = 2 * time.Second
	ErrNoRPCEndpoint = errors.New("no RPC URL configured")
)

// Client is a read-only chain handle bound to the first endpoint that
// answered.
type Client struct {
	*ethclient.Client
	URL        string
	ChainID    int64
	FailedRPCs []string
}

// Dial tries each URL in order and returns the first that reports a chain
// id. When want is non-zero an endpoint on another chain is skipped.
func Dial(ctx context.Context, urls []string, want int64) (*Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCEndpoint
	}
	var failed []string
	var lastErr error
	for _, url := range urls {
		client, id, err := dialOne(ctx, url)
		if err != nil {
			failed = append(failed, url)
			lastErr = err
			continue
		}
		if want != 0 && id != want {
			client.Close()
			failed = append(failed, url)
			lastErr = fmt.Errorf("%s reports chain %d, want %d", url, id, want)
			continue
		}
		return &Client{Client: client, URL: url, ChainID: id, FailedRPCs: failed}, nil
	}
	return nil, models.NewError(models.KindConnection, "dial", "No RPC endpoint reachable.", lastErr)
}

func dialOne(ctx context.Context, url string) (*ethclient.Client, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, 0, err
	}
	return client, id.Int64(), nil
}

// ProbeChainID reports the chain id served at url.
func ProbeChainID(ctx context.Context, url string) (int64, error) {
	client, id, err := dialOne(ctx, url)
	if err != nil {
		return 0, err
	}
	client.Close()
	return id, nil
}

// HasCode reports whether a contract is deployed at addr.
func HasCode(ctx context.Context, reader ethereum.ChainStateReader, addr common.Address) (bool, error) {
	code, err := reader.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// FetchGasPrice fetches the current gas price.
func FetchGasPrice(ctx context.Context, rpcURLs []string) (models.GasPriceData, error) {
	var failed []string
	var lastErr error
	for _, rpcURL := range rpcURLs {
		ctx, cancel := context.WithTimeout(ctx, DialTimeout)
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			failed = append(failed, rpcURL)
			cancel()
			lastErr = err
			continue
		}
		price, err := client.SuggestGasPrice(ctx)
		client.Close()
		cancel()
		if err != nil {
			failed = append(failed, rpcURL)
			lastErr = err
			continue
		}
		return models.GasPriceData{Price: price, FailedRPCs: failed}, nil
	}
	return models.GasPriceData{Err: lastErr, FailedRPCs: failed}, lastErr
}

// FetchRPCLatency pings an RPC URL to measure latency.
func FetchRPCLatency(ctx context.Context, rpcURL string) (models.RPCLatencyData, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, LatencyTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return models.RPCLatencyData{RPCURL: rpcURL, Err: err}, err
	}
	defer client.Close()

	_, err = client.HeaderByNumber(ctx, nil)
	if err != nil {
		return models.RPCLatencyData{RPCURL: rpcURL, Err: err}, err
	}
	return models.RPCLatencyData{RPCURL: rpcURL, Latency: time.Since(start)}, nil
}

// WaitMined polls for the receipt of hash until it is mined or ctx ends.
// A failed receipt is returned together with a ChainCall error.
func WaitMined(ctx context.Context, reader ethereum.TransactionReader, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = ReceiptInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, models.NewError(models.KindChainCall, "receipt", "Transaction reverted.", nil)
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, models.NewError(models.KindChainCall, "receipt", "", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WeiToGwei formats a wei amount in gwei with two decimals.
func WeiToGwei(wei *big.Int) string {
	if wei == nil {
		return "-"
	}
	gp := new(big.Float).SetInt(wei)
	gp.Quo(gp, big.NewFloat(1e9))
	f, _ := gp.Float64()
	return fmt.Sprintf("%.2f Gwei", f)
}
