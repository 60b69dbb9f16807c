package breaker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the breaker store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) LoadState(ctx context.Context) (*State, error) {
	dao := new(StateDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", singletonID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load breaker state: %w", err)
	}
	return toState(dao), nil
}

func (s *pgStore) SaveState(ctx context.Context, state *State) error {
	dao := toStateDao(state)
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO UPDATE").
		Set("open = EXCLUDED.open").
		Set("reason = EXCLUDED.reason").
		Set("opened_at = EXCLUDED.opened_at").
		Set("closed_at = EXCLUDED.closed_at").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save breaker state: %w", err)
	}
	return nil
}
