package blacklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the blacklist store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) AddEntry(ctx context.Context, entryType EntryType, value, reason string) (*Entry, error) {
	dao := &EntryDao{
		ID:        uuid.NewString(),
		EntryType: string(entryType),
		Value:     value,
		Reason:    reason,
		Active:    true,
	}

	// The partial unique index on active (entry_type, value) pairs makes the
	// insert a no-op when the entry is already blocked.
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (entry_type, value) WHERE active DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to add blacklist entry: %w", err)
	}

	existing := new(EntryDao)
	err = s.db.NewSelect().
		Model(existing).
		Where("entry_type = ?", string(entryType)).
		Where("value = ?", value).
		Where("active").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read back blacklist entry: %w", err)
	}
	return toEntry(existing), nil
}

func (s *pgStore) DeactivateEntry(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().
		Model((*EntryDao)(nil)).
		Set("active = FALSE").
		Set("removed_at = NOW()").
		Where("id = ?", id).
		Where("active").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to deactivate blacklist entry: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deactivate result: %w", err)
	}
	if rows == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *pgStore) ListEntries(ctx context.Context, activeOnly bool) ([]*Entry, error) {
	var daos []EntryDao
	query := s.db.NewSelect().
		Model(&daos).
		Order("added_at DESC")
	if activeOnly {
		query = query.Where("active")
	}

	err := query.Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list blacklist entries: %w", err)
	}

	entries := make([]*Entry, len(daos))
	for i := range daos {
		entries[i] = toEntry(&daos[i])
	}
	return entries, nil
}
