package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type plainErr struct{}

func (plainErr) Error() string { return "" }

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"short message wins", NewError(KindChainCall, "buy", "execution reverted: sold out", errors.New("raw rpc")), "execution reverted: sold out"},
		{"wrapped short message", fmt.Errorf("approve: %w", ValidationError("amount", "Enter a valid amount.")), "Enter a valid amount."},
		{"short message under empty outer", NewError(KindChainCall, "claim", "", ValidationError("amount", "Enter a valid amount.")), "Enter a valid amount."},
		{"generic message", errors.New("dial tcp: refused"), "dial tcp: refused"},
		{"string form", plainErr{}, "models.plainErr{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestErrorIsAndKind(t *testing.T) {
	wrapped := fmt.Errorf("buy: %w", ErrBusy)
	assert.True(t, errors.Is(wrapped, ErrBusy))
	assert.True(t, errors.Is(NewError(KindBusy, "", "Another transaction is pending.", nil), ErrBusy))
	assert.False(t, errors.Is(ErrNotConnected, ErrBusy))

	assert.True(t, IsKind(wrapped, KindBusy))
	assert.False(t, IsKind(errors.New("x"), KindBusy))

	cause := errors.New("boom")
	e := NewError(KindChainCall, "claim", "", cause)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "claim: boom", e.Error())
}

func TestConfigErrorListsFields(t *testing.T) {
	err := ConfigError([]string{"payment_token.address", "sale_address"})
	assert.Equal(t, KindConfig, err.Kind)
	assert.Contains(t, err.Error(), "payment_token.address")
	assert.Contains(t, err.Error(), "sale_address")
}
