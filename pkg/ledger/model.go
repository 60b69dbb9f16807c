package ledger

import (
	"time"

	"github.com/uptrace/bun"
)

// AccountDao is a data access object that maps directly to the 'ledger_accounts'
// table in PostgreSQL.
type AccountDao struct {
	bun.BaseModel `bun:"table:ledger_accounts,alias:la"`
	UserID        string    `bun:"user_id,pk,type:varchar(128)"`
	Balance       string    `bun:"balance,notnull,default:'0',type:numeric(38,18)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}
