package bridgestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/ledger"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the bridge transaction store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateLockPending(ctx context.Context, txn *bridge.Transaction, debitTotal decimal.Decimal) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ledger.DebitTx(ctx, tx, txn.UserID, debitTotal); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(toTransactionDao(txn)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert lock transaction: %w", err)
		}
		return nil
	})
}

func (s *pgStore) CreateUnlockPending(ctx context.Context, txn *bridge.Transaction) error {
	_, err := s.db.NewInsert().
		Model(toTransactionDao(txn)).
		Exec(ctx)
	if err == nil {
		return nil
	}

	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || !pgErr.IntegrityViolation() {
		return fmt.Errorf("failed to insert unlock transaction: %w", err)
	}

	// The hash is claimed by a live UNLOCK. Keep a FAILED audit row so the
	// rejection shows up in the user's history; the partial unique index
	// does not cover FAILED rows, so this insert is safe.
	audit := toTransactionDao(txn)
	audit.Status = string(bridge.StatusFailed)
	audit.FailureReason = bridge.ReasonDuplicateTxHash
	now := time.Now()
	audit.CompletedAt = &now
	if _, auditErr := s.db.NewInsert().Model(audit).Exec(ctx); auditErr != nil {
		return fmt.Errorf("failed to record duplicate-hash audit row: %w", auditErr)
	}
	return ErrDuplicateTxHash
}

func (s *pgStore) Transition(ctx context.Context, id string, direction bridge.Direction, from, to bridge.Status, fields TransitionFields) error {
	return transitionTx(ctx, s.db, id, direction, from, to, fields)
}

// transitionTx performs the guarded status update inside the given bun
// handle. The WHERE clause carries the expected current status; losing a
// race surfaces as zero rows affected, never as a silent overwrite.
func transitionTx(ctx context.Context, db bun.IDB, id string, direction bridge.Direction, from, to bridge.Status, fields TransitionFields) error {
	if !bridge.CanTransition(direction, from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidStateTransition, direction, from, to)
	}

	q := db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", string(from))

	if fields.MintTxHash != "" {
		q = q.Set("mint_tx_hash = ?", fields.MintTxHash)
	}
	if fields.FailureReason != "" {
		q = q.Set("failure_reason = ?", fields.FailureReason)
	}
	if fields.Completed {
		q = q.Set("completed_at = NOW()")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to transition transaction %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read transition result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s expected status %s", ErrStorageConflict, id, from)
	}
	return nil
}

func (s *pgStore) FailWithRefund(ctx context.Context, id string, direction bridge.Direction, from bridge.Status, reason, userID string, refund decimal.Decimal) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		fields := TransitionFields{FailureReason: reason, Completed: true}
		if err := transitionTx(ctx, tx, id, direction, from, bridge.StatusFailed, fields); err != nil {
			return err
		}
		return ledger.CreditTx(ctx, tx, userID, refund)
	})
}

func (s *pgStore) CompleteUnlockWithCredit(ctx context.Context, id, userID string, amount decimal.Decimal) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		fields := TransitionFields{Completed: true}
		if err := transitionTx(ctx, tx, id, bridge.DirectionUnlock, bridge.StatusVerified, bridge.StatusUnlocked, fields); err != nil {
			return err
		}
		return ledger.CreditTx(ctx, tx, userID, amount)
	})
}

func (s *pgStore) GetTransaction(ctx context.Context, id string) (*bridge.Transaction, error) {
	dao := new(TransactionDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return toTransaction(dao)
}

func (s *pgStore) ListUserTransactions(ctx context.Context, userID string, limit int) ([]*bridge.Transaction, error) {
	var daos []*TransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list user transactions: %w", err)
	}
	return toTransactions(daos)
}

func (s *pgStore) ListStaleTransactions(ctx context.Context, cutoff time.Time) ([]*bridge.Transaction, error) {
	var daos []*TransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status NOT IN (?)", bun.In([]string{
			string(bridge.StatusMinted),
			string(bridge.StatusUnlocked),
			string(bridge.StatusFailed),
		})).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	return toTransactions(daos)
}
