// Package wallet provides the signing sessions a user can connect with: a
// local key ("injected") or a remote signer paired through a relay.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"presale/pkg/config"
	"presale/pkg/models"
)

// EventType names a session event.
type EventType string

const (
	EventAccountsChanged EventType = "accountsChanged"
	EventChainChanged    EventType = "chainChanged"
	EventDisconnect      EventType = "disconnect"
)

// Event is emitted by a provider when the session changes.
type Event struct {
	Type     EventType
	Accounts []common.Address
	ChainID  int64
	Err      error
}

// Provider is a wallet session.
type Provider interface {
	Kind() models.Capability
	// RequestAccounts authorizes the session. Calling it again on an
	// authorized session returns the same accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	// SwitchChain returns ErrUnrecognizedChain for a chain the wallet
	// does not know.
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, network config.NetworkConfig) error
	SendTransaction(ctx context.Context, req models.TxRequest) (common.Hash, error)
	Events() <-chan Event
	Close() error
}

var (
	ErrUnrecognizedChain = errors.New("unrecognized chain")
	ErrNoInjectedWallet  = models.NewError(models.KindConnection, "connect",
		"No injected wallet found. Use the remote signer instead.", nil)
)

func unrecognized(chainID int64) error {
	return fmt.Errorf("chain %d: %w", chainID, ErrUnrecognizedChain)
}

// emit delivers ev without blocking; a full buffer drops the event.
func emit(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
