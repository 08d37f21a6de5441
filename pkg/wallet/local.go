package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"presale/pkg/config"
	"presale/pkg/models"
)

// LoadKey reads the signing key from the configured environment variable,
// or else from an encrypted keystore file.
func LoadKey(cfg config.WalletConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKeyEnv != "" {
		if hexKey := strings.TrimSpace(os.Getenv(cfg.PrivateKeyEnv)); hexKey != "" {
			key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
			if err != nil {
				return nil, models.NewError(models.KindConnection, "load key", "Invalid private key in "+cfg.PrivateKeyEnv+".", err)
			}
			return key, nil
		}
	}
	if cfg.KeystorePath != "" {
		data, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, models.NewError(models.KindConnection, "load key", "Cannot read keystore file.", err)
		}
		var password string
		if cfg.KeystorePasswordEnv != "" {
			password = os.Getenv(cfg.KeystorePasswordEnv)
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return nil, models.NewError(models.KindConnection, "load key", "Cannot decrypt keystore file.", err)
		}
		return key.PrivateKey, nil
	}
	return nil, ErrNoInjectedWallet
}

// Backend is the node access a LocalProvider needs to build and broadcast
// transactions.
type Backend interface {
	ethereum.ChainReader
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.GasPricer1559
	ethereum.PendingStateReader
	ethereum.TransactionSender
	Close()
}

// Dialer opens a Backend for an RPC URL.
type Dialer func(ctx context.Context, url string) (Backend, error)

func dialEth(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// LocalProvider signs with a key held by this process. It keeps its own
// notion of the selected network, like a browser wallet does.
type LocalProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	dial    Dialer
	events  chan Event

	mu       sync.Mutex
	networks map[int64]config.NetworkConfig
	current  int64
	backend  Backend
}

// NewLocalProvider selects the first network in networks.
func NewLocalProvider(key *ecdsa.PrivateKey, networks []config.NetworkConfig, dial Dialer) *LocalProvider {
	if dial == nil {
		dial = dialEth
	}
	p := &LocalProvider{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		dial:     dial,
		events:   make(chan Event, 16),
		networks: make(map[int64]config.NetworkConfig),
	}
	for i, n := range networks {
		if i == 0 {
			p.current = n.ChainID
		}
		p.networks[n.ChainID] = n
	}
	return p
}

// NewInjected builds the local provider from the session config.
func NewInjected(cfg *config.SaleConfig) (*LocalProvider, error) {
	key, err := LoadKey(cfg.Wallet)
	if err != nil {
		return nil, err
	}
	return NewLocalProvider(key, cfg.Networks(), nil), nil
}

func (p *LocalProvider) Kind() models.Capability { return models.CapabilityInjected }

func (p *LocalProvider) Address() common.Address { return p.address }

func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.address}, nil
}

func (p *LocalProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *LocalProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	if _, ok := p.networks[chainID]; !ok {
		p.mu.Unlock()
		return unrecognized(chainID)
	}
	changed := p.current != chainID
	if changed {
		p.current = chainID
		if p.backend != nil {
			p.backend.Close()
			p.backend = nil
		}
	}
	p.mu.Unlock()

	if changed {
		emit(p.events, Event{Type: EventChainChanged, ChainID: chainID})
	}
	return nil
}

func (p *LocalProvider) AddChain(ctx context.Context, network config.NetworkConfig) error {
	if network.ChainID == 0 || network.RPCURL == "" {
		return fmt.Errorf("add chain: chain id and rpc url are required")
	}
	p.mu.Lock()
	p.networks[network.ChainID] = network
	p.mu.Unlock()
	return p.SwitchChain(ctx, network.ChainID)
}

func (p *LocalProvider) backendFor(ctx context.Context) (Backend, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		return p.backend, p.current, nil
	}
	network, ok := p.networks[p.current]
	if !ok || network.RPCURL == "" {
		return nil, 0, unrecognized(p.current)
	}
	backend, err := p.dial(ctx, network.RPCURL)
	if err != nil {
		return nil, 0, err
	}
	p.backend = backend
	return backend, p.current, nil
}

// SendTransaction signs req for the selected network and broadcasts it.
// London chains get a dynamic-fee transaction, others a legacy one.
func (p *LocalProvider) SendTransaction(ctx context.Context, req models.TxRequest) (common.Hash, error) {
	backend, chainID, err := p.backendFor(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To

	nonce, err := backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: &to, Data: req.Data, Value: value})
	if err != nil {
		return common.Hash{}, err
	}
	gas = gas * 12 / 10

	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("header: %w", err)
	}

	var txData types.TxData
	if head.BaseFee != nil {
		tip, err := backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("tip cap: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		txData = &types.DynamicFeeTx{
			ChainID:   big.NewInt(chainID),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}
	} else {
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("gas price: %w", err)
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}
	}

	signed, err := types.SignNewTx(p.key, types.LatestSignerForChainID(big.NewInt(chainID)), txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (p *LocalProvider) Events() <-chan Event { return p.events }

func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		p.backend.Close()
		p.backend = nil
	}
	return nil
}
