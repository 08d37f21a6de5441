// Package connection owns the wallet session: provider acquisition,
// network reconciliation and session events.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"presale/pkg/config"
	"presale/pkg/logging"
	"presale/pkg/models"
	"presale/pkg/wallet"
	"presale/pkg/watcher"
)

// EventTimeout bounds the chain-id lookup done when the wallet reports a
// change.
var EventTimeout = 10 * time.Second

// Factory returns a provider for one capability.
type Factory func() (wallet.Provider, error)

// Handle is what a transaction needs from an authorized session.
type Handle struct {
	Provider wallet.Provider
	Account  common.Address
	ChainID  int64
}

// Manager is the per-session wallet state machine.
type Manager struct {
	cfg      *config.SaleConfig
	injected Factory
	remote   Factory
	pub      watcher.Publisher
	log      *zap.Logger

	mu           sync.Mutex
	state        models.ConnectionState
	provider     wallet.Provider
	remoteCached wallet.Provider
	stop         chan struct{}
}

func NewManager(cfg *config.SaleConfig, injected, remote Factory, pub watcher.Publisher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = watcher.PublisherFunc(func(watcher.Event) {})
	}
	return &Manager{
		cfg:      cfg,
		injected: injected,
		remote:   remote,
		pub:      pub,
		log:      log,
		state:    models.ConnectionState{Status: models.StatusDisconnected},
	}
}

// State returns a snapshot of the session.
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Account returns the connected account, if any.
func (m *Manager) Account() (common.Address, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Connected() {
		return common.Address{}, false
	}
	return common.HexToAddress(m.state.Account), true
}

// Authorized returns the signing handle when connected on the sale chain.
func (m *Manager) Authorized() (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Connected() || m.provider == nil {
		return Handle{}, models.ErrNotConnected
	}
	if !m.state.CorrectNetwork {
		return Handle{}, models.NewError(models.KindNetworkMismatch, "",
			fmt.Sprintf("Wrong network. Switch to %s (%d).", m.cfg.ChainName, m.cfg.ChainID), nil)
	}
	return Handle{Provider: m.provider, Account: common.HexToAddress(m.state.Account), ChainID: m.state.ChainID}, nil
}

func (m *Manager) mismatchMessage(got int64) string {
	return fmt.Sprintf("Network mismatch. Expected %d, got %d.", m.cfg.ChainID, got)
}

// setState must be called with mu held.
func (m *Manager) setState(s models.ConnectionState) {
	m.state = s
	m.pub.Publish(watcher.Event{Type: watcher.EventConnectionChanged, Data: s})
}

// ConnectAuto prefers the injected signer and falls back to the remote
// one when no local key is available.
func (m *Manager) ConnectAuto(ctx context.Context) (models.ConnectionState, error) {
	state, err := m.Connect(ctx, models.CapabilityInjected)
	if errors.Is(err, wallet.ErrNoInjectedWallet) {
		m.log.Info("No injected wallet found, using the remote signer.")
		return m.Connect(ctx, models.CapabilityRemote)
	}
	return state, err
}

// Connect moves the session from Disconnected through Connecting to
// Connected or Error.
func (m *Manager) Connect(ctx context.Context, capability models.Capability) (models.ConnectionState, error) {
	m.mu.Lock()
	if m.state.Status == models.StatusConnecting {
		m.mu.Unlock()
		return m.State(), models.NewError(models.KindConnection, "connect", "A connection attempt is already in progress.", nil)
	}
	m.teardownLocked()
	m.setState(models.ConnectionState{Status: models.StatusConnecting, Capability: capability})
	m.mu.Unlock()

	p, err := m.acquire(capability)
	if err != nil {
		return m.fail(capability, err)
	}
	drainEvents(p)

	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return m.fail(capability, wrapConnect(err))
	}
	if len(accounts) == 0 {
		return m.fail(capability, models.NewError(models.KindConnection, "connect", "No account authorized.", nil))
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return m.fail(capability, wrapConnect(err))
	}
	if chainID != m.cfg.ChainID && capability == models.CapabilityInjected {
		chainID = m.reconcile(ctx, p, chainID)
	}

	state := models.ConnectionState{
		Status:         models.StatusConnected,
		Account:        accounts[0].Hex(),
		ChainID:        chainID,
		CorrectNetwork: chainID == m.cfg.ChainID,
		Capability:     capability,
	}
	if !state.CorrectNetwork {
		state.Message = m.mismatchMessage(chainID)
		m.log.Warn(state.Message, zap.Int64("expected", m.cfg.ChainID), zap.Int64("got", chainID))
	}

	stop := make(chan struct{})
	m.mu.Lock()
	m.provider = p
	m.stop = stop
	m.setState(state)
	m.mu.Unlock()

	go m.watch(p, stop)
	m.log.Info("Connected: "+state.Account, zap.String("capability", string(capability)), zap.Int64("chain_id", chainID))
	return state, nil
}

func wrapConnect(err error) error {
	if _, ok := models.KindOf(err); ok {
		return err
	}
	return models.NewError(models.KindConnection, "connect", "", err)
}

func (m *Manager) acquire(capability models.Capability) (wallet.Provider, error) {
	switch capability {
	case models.CapabilityInjected:
		if m.injected == nil {
			return nil, wallet.ErrNoInjectedWallet
		}
		return m.injected()
	case models.CapabilityRemote:
		if m.cfg.RPCURL() == "" || m.cfg.Remote.ProjectID == "" {
			return nil, models.NewError(models.KindConnection, "connect",
				"Remote signer requires rpc_urls and remote.project_id in the config.", nil)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.remoteCached != nil {
			return m.remoteCached, nil
		}
		if m.remote == nil {
			return nil, models.NewError(models.KindCapabilityUnavailable, "connect", "Remote signer not available.", nil)
		}
		p, err := m.remote()
		if err != nil {
			return nil, err
		}
		m.remoteCached = p
		return p, nil
	default:
		return nil, models.NewError(models.KindConnection, "connect", "Unknown wallet type "+string(capability)+".", nil)
	}
}

// reconcile asks an injected wallet to move to the sale chain, adding the
// chain first if the wallet does not know it. Failures are logged and the
// session continues on whatever chain the wallet reports.
func (m *Manager) reconcile(ctx context.Context, p wallet.Provider, current int64) int64 {
	err := p.SwitchChain(ctx, m.cfg.ChainID)
	if errors.Is(err, wallet.ErrUnrecognizedChain) {
		err = p.AddChain(ctx, config.NetworkConfig{
			ChainID: m.cfg.ChainID,
			Name:    m.cfg.ChainName,
			RPCURL:  m.cfg.RPCURL(),
			Symbol:  m.cfg.NativeSymbol,
		})
		if err != nil {
			m.log.Warn("Add network failed: "+models.Message(err), zap.Error(err))
		}
	} else if err != nil {
		m.log.Warn("Switch network failed: "+models.Message(err), zap.Error(err))
	}

	id, err := p.ChainID(ctx)
	if err != nil {
		return current
	}
	return id
}

func (m *Manager) fail(capability models.Capability, err error) (models.ConnectionState, error) {
	msg := models.Message(err)
	m.log.Error("Connect error: "+msg, zap.String("capability", string(capability)), zap.Error(err))

	m.mu.Lock()
	defer m.mu.Unlock()
	state := models.ConnectionState{Status: models.StatusError, Capability: capability, Message: msg}
	m.setState(state)
	return state, err
}

// Disconnect ends the session. A cached remote session object is kept for
// the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status == models.StatusDisconnected {
		return
	}
	m.teardownLocked()
	m.setState(models.ConnectionState{Status: models.StatusDisconnected})
	m.log.Info("Disconnected.")
}

// teardownLocked stops the event subscription and releases an injected
// provider. Must be called with mu held.
func (m *Manager) teardownLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.provider != nil && m.provider != m.remoteCached {
		_ = m.provider.Close()
	}
	m.provider = nil
}

// Close ends the session and the cached remote session.
func (m *Manager) Close() {
	m.Disconnect()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remoteCached != nil {
		_ = m.remoteCached.Close()
		m.remoteCached = nil
	}
}

// drainEvents discards events queued while no session was watching p, such
// as a reused relay link that dropped after Disconnect.
func drainEvents(p wallet.Provider) {
	for {
		select {
		case <-p.Events():
		default:
			return
		}
	}
}

func (m *Manager) watch(p wallet.Provider, stop <-chan struct{}) {
	defer logging.Recover(m.log, "wallet events")
	for {
		select {
		case <-stop:
			return
		case ev := <-p.Events():
			m.handle(p, stop, ev)
		}
	}
}

func (m *Manager) current(p wallet.Provider, stop <-chan struct{}) bool {
	if m.provider != p {
		return false
	}
	select {
	case <-stop:
		return false
	default:
		return true
	}
}

func (m *Manager) handle(p wallet.Provider, stop <-chan struct{}, ev wallet.Event) {
	switch ev.Type {
	case wallet.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			m.dropSession(p, stop, "Wallet locked or disconnected.")
			return
		}
		m.refreshChain(p, stop, ev.Accounts[0].Hex())
	case wallet.EventChainChanged:
		m.refreshChain(p, stop, "")
	case wallet.EventDisconnect:
		m.dropSession(p, stop, "Wallet session ended.")
	}
}

// refreshChain re-reads the chain id and, if account is set, replaces the
// active account in place.
func (m *Manager) refreshChain(p wallet.Provider, stop <-chan struct{}, account string) {
	ctx, cancel := context.WithTimeout(context.Background(), EventTimeout)
	defer cancel()
	chainID, err := p.ChainID(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(p, stop) {
		return
	}
	state := m.state
	if account != "" {
		state.Account = account
	}
	if err == nil {
		state.ChainID = chainID
	} else {
		m.log.Warn("Chain id lookup failed: "+models.Message(err), zap.Error(err))
	}
	state.CorrectNetwork = state.ChainID == m.cfg.ChainID
	state.Message = ""
	if !state.CorrectNetwork {
		state.Message = m.mismatchMessage(state.ChainID)
		m.log.Warn(state.Message)
	}
	if account != "" {
		m.log.Info("Account changed: " + account)
	}
	m.setState(state)
}

func (m *Manager) dropSession(p wallet.Provider, stop <-chan struct{}, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(p, stop) {
		return
	}
	m.teardownLocked()
	m.setState(models.ConnectionState{Status: models.StatusDisconnected, Message: reason})
	m.log.Info(reason)
}
