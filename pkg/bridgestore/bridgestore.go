// Package bridgestore persists bridge transactions and enforces the state
// machine at the storage layer. Transitions are conditional updates guarded
// by the expected current status, so two workers racing on the same
// transaction cannot both win.
package bridgestore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

var (
	// ErrTransactionNotFound indicates the transaction id is unknown.
	ErrTransactionNotFound = errors.New("bridge transaction not found")
	// ErrInvalidStateTransition indicates the requested transition is not in
	// the state machine.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrStorageConflict indicates the conditional update matched no row: a
	// concurrent writer moved the transaction first.
	ErrStorageConflict = errors.New("transaction was modified concurrently")
	// ErrDuplicateTxHash indicates the external burn hash was already claimed
	// by a live UNLOCK.
	ErrDuplicateTxHash = errors.New("external tx hash already used")
)

// TransitionFields carries the columns written alongside a status change.
// Zero values leave the column untouched.
type TransitionFields struct {
	MintTxHash    string
	FailureReason string
	Completed     bool
}

// Store is the persistence interface for bridge transactions.
type Store interface {
	// CreateLockPending atomically debits amount+fee from the user's ledger
	// balance and inserts the PENDING LOCK row. Either both happen or
	// neither does.
	CreateLockPending(ctx context.Context, txn *bridge.Transaction, debitTotal decimal.Decimal) error

	// CreateUnlockPending inserts the PENDING UNLOCK row. If the external tx
	// hash is already claimed by a live UNLOCK it records a FAILED audit row
	// instead and returns ErrDuplicateTxHash.
	CreateUnlockPending(ctx context.Context, txn *bridge.Transaction) error

	// Transition moves a transaction from one status to another. It returns
	// ErrInvalidStateTransition if the state machine forbids the move and
	// ErrStorageConflict if the row is no longer in the expected status.
	Transition(ctx context.Context, id string, direction bridge.Direction, from, to bridge.Status, fields TransitionFields) error

	// FailWithRefund atomically marks the transaction FAILED and credits the
	// refund back to the user's ledger balance.
	FailWithRefund(ctx context.Context, id string, direction bridge.Direction, from bridge.Status, reason, userID string, refund decimal.Decimal) error

	// CompleteUnlockWithCredit atomically moves a VERIFIED UNLOCK to
	// UNLOCKED and credits the user's ledger balance.
	CompleteUnlockWithCredit(ctx context.Context, id, userID string, amount decimal.Decimal) error

	GetTransaction(ctx context.Context, id string) (*bridge.Transaction, error)
	ListUserTransactions(ctx context.Context, userID string, limit int) ([]*bridge.Transaction, error)

	// ListStaleTransactions returns non-terminal transactions not touched
	// since the cutoff.
	ListStaleTransactions(ctx context.Context, cutoff time.Time) ([]*bridge.Transaction, error)
}
