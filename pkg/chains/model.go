package chains

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

// ChainDao is a data access object that maps directly to the 'supported_chains'
// table in PostgreSQL.
type ChainDao struct {
	bun.BaseModel `bun:"table:supported_chains,alias:sc"`
	ChainCode     string    `bun:"chain_code,pk,type:varchar(32)"`
	DisplayName   string    `bun:"display_name,notnull,type:varchar(128)"`
	MinAmount     string    `bun:"min_amount,notnull,type:numeric(38,18)"`
	Fee           string    `bun:"fee,notnull,type:numeric(38,18)"`
	Enabled       bool      `bun:"enabled,notnull,default:true"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

func toChainDao(c *bridge.SupportedChain) *ChainDao {
	return &ChainDao{
		ChainCode:   c.ChainCode,
		DisplayName: c.DisplayName,
		MinAmount:   c.MinAmount.String(),
		Fee:         c.Fee.String(),
		Enabled:     c.Enabled,
		CreatedAt:   c.CreatedAt,
	}
}

func toChain(dao *ChainDao) (*bridge.SupportedChain, error) {
	minAmount, err := decimal.NewFromString(dao.MinAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt min_amount for chain %s: %w", dao.ChainCode, err)
	}
	fee, err := decimal.NewFromString(dao.Fee)
	if err != nil {
		return nil, fmt.Errorf("corrupt fee for chain %s: %w", dao.ChainCode, err)
	}
	return &bridge.SupportedChain{
		ChainCode:   dao.ChainCode,
		DisplayName: dao.DisplayName,
		MinAmount:   minAmount,
		Fee:         fee,
		Enabled:     dao.Enabled,
		CreatedAt:   dao.CreatedAt,
	}, nil
}
