package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
	ErrInvalidHeader          = errors.New("invalid record header")
)

// MismatchError reports a save attempt whose breakdown does not add up to the
// declared total. It matches ErrReconciliationMismatch with errors.Is.
type MismatchError struct {
	Declared   decimal.Decimal
	Breakdown  decimal.Decimal
	Difference decimal.Decimal
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("reconciliation mismatch: declared %s, breakdown %s, difference %s",
		e.Declared.String(), e.Breakdown.String(), e.Difference.String())
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrReconciliationMismatch
}

// GatewayWriteError wraps a failed ledger append (auth, network, quota).
type GatewayWriteError struct {
	Err error
}

func (e *GatewayWriteError) Error() string {
	return "ledger write failed: " + e.Err.Error()
}

func (e *GatewayWriteError) Unwrap() error {
	return e.Err
}

// ConfigurationLoadError wraps a failed read of a reference list.
type ConfigurationLoadError struct {
	Column int
	Err    error
}

func (e *ConfigurationLoadError) Error() string {
	return fmt.Sprintf("load configuration column %d: %v", e.Column, e.Err)
}

func (e *ConfigurationLoadError) Unwrap() error {
	return e.Err
}
