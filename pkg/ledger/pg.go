package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type pgLedger struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the ledger
func NewStore(db *bun.DB) *pgLedger {
	return &pgLedger{db: db}
}

func (l *pgLedger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	dao := new(AccountDao)
	err := l.db.NewSelect().
		Model(dao).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := decimal.NewFromString(dao.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}
	return balance, nil
}

func (l *pgLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return DebitTx(ctx, l.db, userID, amount)
}

func (l *pgLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	return CreditTx(ctx, l.db, userID, amount)
}

// DebitTx subtracts amount from the user's balance inside the given bun
// handle. The balance guard lives in the WHERE clause: the row lock taken by
// the UPDATE serializes concurrent debits, and a debit that would overdraw
// matches no rows.
func DebitTx(ctx context.Context, db bun.IDB, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit amount must not be negative: %s", amount)
	}

	res, err := db.NewUpdate().
		Model((*AccountDao)(nil)).
		Set("balance = balance - ?::DECIMAL", amount.String()).
		Set("updated_at = NOW()").
		Where("user_id = ?", userID).
		Where("balance >= ?::DECIMAL", amount.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read debit result: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// CreditTx adds amount to the user's balance inside the given bun handle,
// creating the account row if it does not exist yet.
func CreditTx(ctx context.Context, db bun.IDB, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit amount must not be negative: %s", amount)
	}

	dao := &AccountDao{
		UserID:  userID,
		Balance: amount.String(),
	}
	_, err := db.NewInsert().
		Model(dao).
		On("CONFLICT (user_id) DO UPDATE").
		Set("balance = ledger_accounts.balance + EXCLUDED.balance::DECIMAL").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}
