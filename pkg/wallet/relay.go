package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"presale/pkg/config"
	"presale/pkg/models"
)

const (
	// DefaultRelayURL is used when remote.relay_url is not configured.
	DefaultRelayURL = "ws://127.0.0.1:8787/relay"

	relayWriteWait = 10 * time.Second
	relayPollStep  = 250 * time.Millisecond

	codeUnrecognizedChain = 4902
)

// PairTimeout bounds how long pairing waits for the remote approval.
var PairTimeout = 5 * time.Minute

// Relay message types.
const (
	msgPair           = "pair"
	msgDisplayURI     = "display_uri"
	msgSessionApprove = "session_approve"
	msgSessionReject  = "session_reject"
	msgSessionUpdate  = "session_update"
	msgSessionDelete  = "session_delete"
	msgRequest        = "request"
	msgResponse       = "response"
)

type relayMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
	ChainID   int64           `json:"chain_id,omitempty"`
	RPCURL    string          `json:"rpc_url,omitempty"`
	URI       string          `json:"uri,omitempty"`
	Accounts  []string        `json:"accounts,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *RelayError     `json:"error,omitempty"`
}

// RelayError is an error reported by the remote wallet.
type RelayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RelayError) Error() string  { return e.Message }
func (e *RelayError) ErrorCode() int { return e.Code }

// RelayOptions configures a RelayProvider.
type RelayOptions struct {
	URL       string
	ProjectID string
	RPCURL    string
	ChainID   int64
	// Wait bounds how long the relay endpoint is polled before giving up.
	Wait time.Duration
	// OnDisplayURI receives the pairing URI to show to the user.
	OnDisplayURI func(uri string)
}

// RelayOptionsFrom derives options from the session config.
func RelayOptionsFrom(cfg *config.SaleConfig, onURI func(string)) RelayOptions {
	url := cfg.Remote.RelayURL
	if url == "" {
		url = DefaultRelayURL
	}
	return RelayOptions{
		URL:          url,
		ProjectID:    cfg.Remote.ProjectID,
		RPCURL:       cfg.RPCURL(),
		ChainID:      cfg.ChainID,
		Wait:         time.Duration(cfg.Remote.WaitSeconds) * time.Second,
		OnDisplayURI: onURI,
	}
}

// RelayProvider is a remote signer reached through a WebSocket relay. One
// instance serves a whole session and pairs again if its link drops.
type RelayProvider struct {
	opts   RelayOptions
	dialer websocket.Dialer
	events chan Event

	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	accounts []common.Address
	chainID  int64
	approved chan error
	pending  map[string]chan relayMessage
	closed   bool
}

func NewRelayProvider(opts RelayOptions) *RelayProvider {
	if opts.Wait <= 0 {
		opts.Wait = config.DefaultRelayWait * time.Second
	}
	return &RelayProvider{
		opts:    opts,
		dialer:  websocket.Dialer{HandshakeTimeout: relayPollStep * 4},
		events:  make(chan Event, 16),
		pending: make(map[string]chan relayMessage),
	}
}

func (p *RelayProvider) Kind() models.Capability { return models.CapabilityRemote }

// awaitRelay polls the relay endpoint until it accepts a connection or the
// configured wait elapses.
func (p *RelayProvider) awaitRelay(ctx context.Context) (*websocket.Conn, error) {
	deadline := time.Now().Add(p.opts.Wait)
	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, relayPollStep*4)
		conn, _, err := p.dialer.DialContext(attemptCtx, p.opts.URL, nil)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if time.Now().Add(relayPollStep).After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(relayPollStep):
		}
	}
	return nil, models.NewError(models.KindCapabilityUnavailable, "relay",
		fmt.Sprintf("Remote signer relay not available after %s.", p.opts.Wait), lastErr)
}

// RequestAccounts pairs with a remote wallet, or returns the accounts of
// the live session.
func (p *RelayProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, models.NewError(models.KindConnection, "relay", "Remote session closed.", nil)
	}
	if p.conn != nil && len(p.accounts) > 0 {
		accounts := append([]common.Address(nil), p.accounts...)
		p.mu.Unlock()
		return accounts, nil
	}
	approved := p.approved
	p.mu.Unlock()

	if approved == nil {
		var err error
		if approved, err = p.pair(ctx); err != nil {
			return nil, err
		}
	}

	timer := time.NewTimer(PairTimeout)
	defer timer.Stop()
	select {
	case err := <-approved:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, models.NewError(models.KindConnection, "pair", "Pairing timed out.", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *RelayProvider) pair(ctx context.Context) (chan error, error) {
	if p.opts.ProjectID == "" || p.opts.RPCURL == "" {
		return nil, models.NewError(models.KindConnection, "pair", "Remote signer requires an RPC URL and a project id.", nil)
	}
	conn, err := p.awaitRelay(ctx)
	if err != nil {
		return nil, err
	}

	approved := make(chan error, 1)
	p.mu.Lock()
	p.conn = conn
	p.accounts = nil
	p.approved = approved
	p.mu.Unlock()

	go p.readLoop(conn)

	err = p.write(conn, relayMessage{
		Type:      msgPair,
		ID:        uuid.NewString(),
		ProjectID: p.opts.ProjectID,
		ChainID:   p.opts.ChainID,
		RPCURL:    p.opts.RPCURL,
	})
	if err != nil {
		_ = conn.Close()
		return nil, models.NewError(models.KindConnection, "pair", "Cannot reach the remote signer relay.", err)
	}
	return approved, nil
}

func (p *RelayProvider) write(conn *websocket.Conn, msg relayMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
	return conn.WriteJSON(msg)
}

func (p *RelayProvider) readLoop(conn *websocket.Conn) {
	for {
		var msg relayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			p.dropped(conn, err)
			return
		}
		p.dispatch(conn, msg)
	}
}

func parseAccounts(raw []string) []common.Address {
	accounts := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		if common.IsHexAddress(a) {
			accounts = append(accounts, common.HexToAddress(a))
		}
	}
	return accounts
}

func (p *RelayProvider) dispatch(conn *websocket.Conn, msg relayMessage) {
	switch msg.Type {
	case msgDisplayURI:
		if p.opts.OnDisplayURI != nil && msg.URI != "" {
			p.opts.OnDisplayURI(msg.URI)
		}

	case msgSessionApprove:
		p.mu.Lock()
		p.accounts = parseAccounts(msg.Accounts)
		p.chainID = msg.ChainID
		approved := p.approved
		p.approved = nil
		p.mu.Unlock()
		if approved != nil {
			approved <- nil
		}

	case msgSessionReject:
		p.mu.Lock()
		approved := p.approved
		p.approved = nil
		p.mu.Unlock()
		if approved != nil {
			reason := "Pairing rejected."
			if msg.Error != nil && msg.Error.Message != "" {
				reason = msg.Error.Message
			}
			approved <- models.NewError(models.KindConnection, "pair", reason, nil)
		}
		_ = conn.Close()

	case msgSessionUpdate:
		accounts := parseAccounts(msg.Accounts)
		p.mu.Lock()
		accountsChanged := msg.Accounts != nil && !sameAccounts(accounts, p.accounts)
		chainChanged := msg.ChainID != 0 && msg.ChainID != p.chainID
		if accountsChanged {
			p.accounts = accounts
		}
		if chainChanged {
			p.chainID = msg.ChainID
		}
		p.mu.Unlock()
		if accountsChanged {
			emit(p.events, Event{Type: EventAccountsChanged, Accounts: accounts})
		}
		if chainChanged {
			emit(p.events, Event{Type: EventChainChanged, ChainID: msg.ChainID})
		}

	case msgSessionDelete:
		_ = conn.Close()

	case msgResponse:
		p.mu.Lock()
		ch := p.pending[msg.ID]
		delete(p.pending, msg.ID)
		p.mu.Unlock()
		if ch != nil {
			ch <- msg
		}
	}
}

// dropped tears down a dead link. The next RequestAccounts pairs again.
func (p *RelayProvider) dropped(conn *websocket.Conn, err error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	hadSession := len(p.accounts) > 0
	p.conn = nil
	p.accounts = nil
	approved := p.approved
	p.approved = nil
	pending := p.pending
	p.pending = make(map[string]chan relayMessage)
	p.mu.Unlock()

	_ = conn.Close()
	if approved != nil {
		approved <- models.NewError(models.KindConnection, "pair", "Remote session ended before approval.", err)
	}
	for id, ch := range pending {
		ch <- relayMessage{Type: msgResponse, ID: id, Error: &RelayError{Code: -32000, Message: "remote session ended"}}
	}
	if hadSession {
		emit(p.events, Event{Type: EventDisconnect, Err: err})
	}
}

func (p *RelayProvider) request(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}

	p.mu.Lock()
	conn := p.conn
	if conn == nil || len(p.accounts) == 0 {
		p.mu.Unlock()
		return models.ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan relayMessage, 1)
	p.pending[id] = ch
	p.mu.Unlock()

	if err := p.write(conn, relayMessage{Type: msgRequest, ID: id, Method: method, Params: raw}); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *RelayProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || len(p.accounts) == 0 {
		return 0, models.ErrNotConnected
	}
	return p.chainID, nil
}

func (p *RelayProvider) SwitchChain(ctx context.Context, chainID int64) error {
	params := []map[string]string{{"chainId": hexutil.EncodeBig(big.NewInt(chainID))}}
	err := p.request(ctx, "wallet_switchEthereumChain", params, nil)
	var re *RelayError
	if errors.As(err, &re) && re.Code == codeUnrecognizedChain {
		return unrecognized(chainID)
	}
	return err
}

func (p *RelayProvider) AddChain(ctx context.Context, network config.NetworkConfig) error {
	params := []map[string]any{{
		"chainId":        hexutil.EncodeBig(big.NewInt(network.ChainID)),
		"chainName":      network.Name,
		"rpcUrls":        []string{network.RPCURL},
		"nativeCurrency": map[string]any{"name": network.Symbol, "symbol": network.Symbol, "decimals": 18},
	}}
	return p.request(ctx, "wallet_addEthereumChain", params, nil)
}

func (p *RelayProvider) SendTransaction(ctx context.Context, req models.TxRequest) (common.Hash, error) {
	tx := map[string]string{
		"from": req.From.Hex(),
		"to":   req.To.Hex(),
		"data": hexutil.Encode(req.Data),
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		tx["value"] = hexutil.EncodeBig(req.Value)
	}
	var hash common.Hash
	if err := p.request(ctx, "eth_sendTransaction", []any{tx}, &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (p *RelayProvider) Events() <-chan Event { return p.events }

// Close ends the session for good.
func (p *RelayProvider) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.closed = true
	p.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
