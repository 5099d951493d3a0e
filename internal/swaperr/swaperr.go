// Package swaperr defines the failure kinds surfaced by orchestration and
// maps provider and revert errors onto them.
package swaperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	UnknownFailure Kind = iota
	PoolNotFound
	InsufficientLiquidity
	InsufficientPairedAmount
	InvalidTokenSelection
	InvalidAmount
	UserRejected
	RequestAlreadyPending
	WrongNetwork
	NotConnected
	AllowanceInsufficient
	TransientFetchFailure
	TransactionReverted
)

var kindNames = map[Kind]string{
	UnknownFailure:           "UnknownFailure",
	PoolNotFound:             "PoolNotFound",
	InsufficientLiquidity:    "InsufficientLiquidity",
	InsufficientPairedAmount: "InsufficientPairedAmount",
	InvalidTokenSelection:    "InvalidTokenSelection",
	InvalidAmount:            "InvalidAmount",
	UserRejected:             "UserRejected",
	RequestAlreadyPending:    "RequestAlreadyPending",
	WrongNetwork:             "WrongNetwork",
	NotConnected:             "NotConnected",
	AllowanceInsufficient:    "AllowanceInsufficient",
	TransientFetchFailure:    "TransientFetchFailure",
	TransactionReverted:      "TransactionReverted",
}

var kindMessages = map[Kind]string{
	UnknownFailure:           "something went wrong, please try again",
	PoolNotFound:             "liquidity pool does not exist",
	InsufficientLiquidity:    "insufficient liquidity in pool",
	InsufficientPairedAmount: "insufficient paired amount, please adjust the ratio",
	InvalidTokenSelection:    "invalid token selection",
	InvalidAmount:            "invalid amount",
	UserRejected:             "transaction rejected by user",
	RequestAlreadyPending:    "request already pending, please check your wallet",
	WrongNetwork:             "please switch network",
	NotConnected:             "please connect a wallet",
	AllowanceInsufficient:    "please approve token spending first",
	TransientFetchFailure:    "market data temporarily unavailable",
	TransactionReverted:      "transaction reverted",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure. Err keeps the original cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New builds a classified error for op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* values below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Message is the short user-facing text for the failure.
func (e *Error) Message() string {
	return kindMessages[e.Kind]
}

var (
	ErrPoolNotFound             = &Error{Kind: PoolNotFound}
	ErrInsufficientLiquidity    = &Error{Kind: InsufficientLiquidity}
	ErrInsufficientPairedAmount = &Error{Kind: InsufficientPairedAmount}
	ErrInvalidTokenSelection    = &Error{Kind: InvalidTokenSelection}
	ErrInvalidAmount            = &Error{Kind: InvalidAmount}
	ErrUserRejected             = &Error{Kind: UserRejected}
	ErrRequestAlreadyPending    = &Error{Kind: RequestAlreadyPending}
	ErrWrongNetwork             = &Error{Kind: WrongNetwork}
	ErrNotConnected             = &Error{Kind: NotConnected}
	ErrTransactionReverted      = &Error{Kind: TransactionReverted}
	ErrUnknownFailure           = &Error{Kind: UnknownFailure}
)

// KindOf returns the kind of err, or UnknownFailure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnknownFailure
}

// Message returns the user-facing text for any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return kindMessages[KindOf(err)]
}
