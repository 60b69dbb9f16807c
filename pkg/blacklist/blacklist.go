// Package blacklist tracks identities and external addresses barred from
// bridge operations. Entries are soft-deleted only: the row history is part
// of the audit trail.
package blacklist

import (
	"context"
	"errors"
	"time"
)

// ErrEntryNotFound is returned when a blacklist entry lookup finds no
// matching record.
var ErrEntryNotFound = errors.New("blacklist entry not found")

// EntryType distinguishes what kind of identifier an entry blocks.
type EntryType string

const (
	// TypeDID blocks a platform decentralized identity.
	TypeDID EntryType = "DID"
	// TypeAddress blocks an external chain address.
	TypeAddress EntryType = "ADDRESS"
)

// Entry represents one blocked identifier.
type Entry struct {
	ID        string
	Type      EntryType
	Value     string
	Reason    string
	Active    bool
	AddedAt   time.Time
	RemovedAt *time.Time
}

// Store defines the persistence interface for blacklist entries.
type Store interface {
	// AddEntry records a blocked identifier. Re-adding an already-active
	// (type, value) pair is a no-op that returns the existing entry.
	AddEntry(ctx context.Context, entryType EntryType, value, reason string) (*Entry, error)
	// DeactivateEntry soft-deletes an entry. The row is kept.
	DeactivateEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, activeOnly bool) ([]*Entry, error)
}
