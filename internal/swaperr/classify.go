package swaperr

import (
	"errors"
	"strings"
)

// Provider error codes used by wallet providers.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
)

// coder is implemented by wallet provider errors.
type coder interface {
	ProviderCode() int
}

// ProviderCode extracts a wallet provider error code from err.
func ProviderCode(err error) (int, bool) {
	var c coder
	if errors.As(err, &c) {
		return c.ProviderCode(), true
	}
	return 0, false
}

var revertReasons = []struct {
	marker string
	kind   Kind
}{
	{"INSUFFICIENT_A_AMOUNT", InsufficientPairedAmount},
	{"INSUFFICIENT_B_AMOUNT", InsufficientPairedAmount},
	{"INSUFFICIENT_LIQUIDITY", InsufficientLiquidity},
	{"INSUFFICIENT_OUTPUT_AMOUNT", InsufficientLiquidity},
	{"insufficient allowance", AllowanceInsufficient},
	{"TRANSFER_FROM_FAILED", AllowanceInsufficient},
}

// Classify maps err onto a kind. Already classified errors keep their kind.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(classifyKind(err), op, err)
}

func classifyKind(err error) Kind {
	if code, ok := ProviderCode(err); ok {
		switch code {
		case CodeUserRejected:
			return UserRejected
		case CodeRequestPending:
			return RequestAlreadyPending
		}
	}
	msg := err.Error()
	for _, r := range revertReasons {
		if strings.Contains(msg, r.marker) {
			return r.kind
		}
	}
	return UnknownFailure
}
