package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind string

const (
	KindConfig                ErrorKind = "config"
	KindConnection            ErrorKind = "connection"
	KindNetworkMismatch       ErrorKind = "network_mismatch"
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
	KindValidation            ErrorKind = "validation"
	KindAllowance             ErrorKind = "allowance"
	KindChainCall             ErrorKind = "chain_call"
	KindBusy                  ErrorKind = "busy"
)

var (
	ErrBusy         = &Error{Kind: KindBusy, Short: "Another transaction is pending."}
	ErrNotConnected = &Error{Kind: KindConnection, Short: "Wallet not connected."}
)

// Error is the typed error used across the client. Short is the human
// message shown to the user when present.
type Error struct {
	Kind  ErrorKind
	Op    string
	Short string
	Err   error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Short != "" {
		parts = append(parts, e.Short)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return string(e.Kind)
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// ShortMessage returns the human-oriented part of the error, if any.
func (e *Error) ShortMessage() string { return e.Short }

// Is matches on Kind so errors.Is(err, ErrBusy) works for any busy error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Short == "" || t.Short == e.Short)
}

func NewError(kind ErrorKind, op, short string, err error) *Error {
	return &Error{Kind: kind, Op: op, Short: short, Err: err}
}

func ConfigError(fields []string) *Error {
	return &Error{Kind: KindConfig, Short: fmt.Sprintf("missing required config fields: %s", strings.Join(fields, ", "))}
}

func ValidationError(op, short string) *Error {
	return &Error{Kind: KindValidation, Op: op, Short: short}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

type shortMessager interface {
	ShortMessage() string
}

// messageExtractors are tried in order; the first non-empty result wins.
var messageExtractors = []func(error) (string, bool){
	func(err error) (string, bool) {
		for ; err != nil; err = errors.Unwrap(err) {
			if sm, ok := err.(shortMessager); ok {
				if s := sm.ShortMessage(); s != "" {
					return s, true
				}
			}
		}
		return "", false
	},
	func(err error) (string, bool) {
		s := err.Error()
		return s, s != ""
	},
	func(err error) (string, bool) {
		return fmt.Sprintf("%#v", err), true
	},
}

// Message is the user-facing text for err: its short message if present,
// else its generic message, else its string form.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, extract := range messageExtractors {
		if s, ok := extract(err); ok {
			return s
		}
	}
	return ""
}
