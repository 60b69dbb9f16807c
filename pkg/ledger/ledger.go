// Package ledger manages internal SEMILLA balances. Balance mutations are
// conditional single-statement updates so concurrent debits against the same
// account serialize on the row and can never pass a stale sufficiency check.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when a debit would take an account
	// below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAccountNotFound is returned when a balance lookup finds no account.
	ErrAccountNotFound = errors.New("ledger account not found")
)

// Ledger defines the balance operations the bridge orchestrator consumes.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
}
