package bridgestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

// TransactionDao is a data access object that maps directly to the
// 'bridge_transactions' table in PostgreSQL.
type TransactionDao struct {
	bun.BaseModel   `bun:"table:bridge_transactions,alias:bt"`
	ID              string     `bun:"id,pk,type:uuid"`
	UserID          string     `bun:"user_id,notnull,type:varchar(256)"`
	Direction       string     `bun:"direction,notnull,type:varchar(16)"`
	ChainCode       string     `bun:"chain_code,notnull,type:varchar(32)"`
	Amount          string     `bun:"amount,notnull,type:numeric(38,18)"`
	Fee             string     `bun:"fee,notnull,type:numeric(38,18)"`
	ExternalAddress string     `bun:"external_address,type:varchar(128)"`
	ExternalTxHash  string     `bun:"external_tx_hash,type:varchar(128)"`
	MintTxHash      string     `bun:"mint_tx_hash,type:varchar(128)"`
	Status          string     `bun:"status,notnull,type:varchar(16)"`
	FailureReason   string     `bun:"failure_reason,type:varchar(64)"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
	CompletedAt     *time.Time `bun:"completed_at"`
}

func toTransactionDao(t *bridge.Transaction) *TransactionDao {
	return &TransactionDao{
		ID:              t.ID,
		UserID:          t.UserID,
		Direction:       string(t.Direction),
		ChainCode:       t.ChainCode,
		Amount:          t.Amount.String(),
		Fee:             t.Fee.String(),
		ExternalAddress: t.ExternalAddress,
		ExternalTxHash:  t.ExternalTxHash,
		MintTxHash:      t.MintTxHash,
		Status:          string(t.Status),
		FailureReason:   t.FailureReason,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
	}
}

func toTransaction(dao *TransactionDao) (*bridge.Transaction, error) {
	amount, err := decimal.NewFromString(dao.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", dao.ID, err)
	}
	fee, err := decimal.NewFromString(dao.Fee)
	if err != nil {
		return nil, fmt.Errorf("corrupt fee for transaction %s: %w", dao.ID, err)
	}
	return &bridge.Transaction{
		ID:              dao.ID,
		UserID:          dao.UserID,
		Direction:       bridge.Direction(dao.Direction),
		ChainCode:       dao.ChainCode,
		Amount:          amount,
		Fee:             fee,
		ExternalAddress: dao.ExternalAddress,
		ExternalTxHash:  dao.ExternalTxHash,
		MintTxHash:      dao.MintTxHash,
		Status:          bridge.Status(dao.Status),
		FailureReason:   dao.FailureReason,
		CreatedAt:       dao.CreatedAt,
		UpdatedAt:       dao.UpdatedAt,
		CompletedAt:     dao.CompletedAt,
	}, nil
}

func toTransactions(daos []*TransactionDao) ([]*bridge.Transaction, error) {
	out := make([]*bridge.Transaction, 0, len(daos))
	for _, dao := range daos {
		txn, err := toTransaction(dao)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}
