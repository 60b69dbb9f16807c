package chains

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the chain store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) ListChains(ctx context.Context) ([]*bridge.SupportedChain, error) {
	var daos []ChainDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("chain_code ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	result := make([]*bridge.SupportedChain, 0, len(daos))
	for i := range daos {
		chain, err := toChain(&daos[i])
		if err != nil {
			return nil, err
		}
		result = append(result, chain)
	}
	return result, nil
}

func (s *pgStore) UpsertChain(ctx context.Context, chain *bridge.SupportedChain) error {
	dao := toChainDao(chain)
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (chain_code) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("min_amount = EXCLUDED.min_amount").
		Set("fee = EXCLUDED.fee").
		Set("enabled = EXCLUDED.enabled").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert chain: %w", err)
	}
	return nil
}

func (s *pgStore) SetChainEnabled(ctx context.Context, chainCode string, enabled bool) error {
	res, err := s.db.NewUpdate().
		Model((*ChainDao)(nil)).
		Set("enabled = ?", enabled).
		Where("chain_code = ?", chainCode).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set chain enabled: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read chain update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrChainNotFound, chainCode)
	}
	return nil
}
