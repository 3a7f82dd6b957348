package models

import (
	"errors"
	"fmt"
)

var ErrWalletNotFound = errors.New("wallet reference not found or deactivated")

// ValidationError is the caller's fault. Fatal, never retried, no leg is
// dispatched once one is raised.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PartialSettlementError means one leg settled and its pair did not. Always
// surfaced for manual intervention; an automatic retry could double-credit.
type PartialSettlementError struct {
	TransactionID string
	SettledLegID  string
	Reason        string
}

func (e *PartialSettlementError) Error() string {
	return fmt.Sprintf("partial settlement on transaction %s (settled leg %s): %s",
		e.TransactionID, e.SettledLegID, e.Reason)
}
