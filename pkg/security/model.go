package security

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// EventDao is a data access object that maps directly to the
// 'security_events' table in PostgreSQL.
type EventDao struct {
	bun.BaseModel `bun:"table:security_events,alias:se"`
	ID            string          `bun:"id,pk,type:uuid"`
	EventType     string          `bun:"event_type,notnull,type:varchar(64)"`
	Severity      string          `bun:"severity,notnull,type:varchar(16)"`
	Details       json.RawMessage `bun:"details,type:jsonb"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
	Resolved      bool            `bun:"resolved,notnull,default:false"`
	ResolvedAt    *time.Time      `bun:"resolved_at"`
}

func toEventDao(e *Event) (*EventDao, error) {
	raw, err := json.Marshal(e.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event details: %w", err)
	}
	return &EventDao{
		ID:         e.ID,
		EventType:  string(e.Type),
		Severity:   string(e.Severity),
		Details:    raw,
		CreatedAt:  e.CreatedAt,
		Resolved:   e.Resolved,
		ResolvedAt: e.ResolvedAt,
	}, nil
}

func toEvent(dao *EventDao) (*Event, error) {
	details, err := DecodeDetails(EventType(dao.EventType), dao.Details)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:         dao.ID,
		Type:       EventType(dao.EventType),
		Severity:   Severity(dao.Severity),
		Details:    details,
		CreatedAt:  dao.CreatedAt,
		Resolved:   dao.Resolved,
		ResolvedAt: dao.ResolvedAt,
	}, nil
}
