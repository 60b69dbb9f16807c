package security

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the security event store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) InsertEvent(ctx context.Context, event *Event) error {
	dao, err := toEventDao(event)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

func (s *pgStore) ListEvents(ctx context.Context, limit int) ([]*Event, error) {
	var daos []EventDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return toEvents(daos)
}

func (s *pgStore) ListEventsSince(ctx context.Context, since time.Time) ([]*Event, error) {
	var daos []EventDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list security events since %s: %w", since, err)
	}
	return toEvents(daos)
}

func (s *pgStore) CountEvents(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*EventDao)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return int64(count), nil
}

func (s *pgStore) ResolveEvent(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().
		Model((*EventDao)(nil)).
		Set("resolved = TRUE").
		Set("resolved_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve security event: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read resolve result: %w", err)
	}
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

func toEvents(daos []EventDao) ([]*Event, error) {
	events := make([]*Event, 0, len(daos))
	for i := range daos {
		event, err := toEvent(&daos[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
