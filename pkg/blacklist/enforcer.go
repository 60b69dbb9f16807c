package blacklist

import (
	"context"
	"fmt"
	"sync/atomic"
)

// matchSet is one immutable generation of the blocked identifier sets.
type matchSet struct {
	dids      map[string]*Entry
	addresses map[string]*Entry
}

// Enforcer answers per-request blacklist checks from an atomic snapshot.
// Every bridge request reads it; writes happen only on admin edits, which
// swap a freshly built snapshot in.
type Enforcer struct {
	store    Store
	snapshot atomic.Pointer[matchSet]
}

// NewEnforcer creates an enforcer and loads the initial snapshot.
func NewEnforcer(ctx context.Context, store Store) (*Enforcer, error) {
	e := &Enforcer{store: store}
	if err := e.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}
	return e, nil
}

// Reload rebuilds the snapshot from storage.
func (e *Enforcer) Reload(ctx context.Context) error {
	entries, err := e.store.ListEntries(ctx, true)
	if err != nil {
		return err
	}

	set := &matchSet{
		dids:      make(map[string]*Entry),
		addresses: make(map[string]*Entry),
	}
	for _, entry := range entries {
		switch entry.Type {
		case TypeDID:
			set.dids[entry.Value] = entry
		case TypeAddress:
			set.addresses[entry.Value] = entry
		}
	}
	e.snapshot.Store(set)
	return nil
}

// Match checks the requesting identity and the external address against the
// active blacklist. It returns the first matching entry.
func (e *Enforcer) Match(did, address string) (*Entry, bool) {
	set := e.snapshot.Load()
	if set == nil {
		return nil, false
	}
	if did != "" {
		if entry, ok := set.dids[did]; ok {
			return entry, true
		}
	}
	if address != "" {
		if entry, ok := set.addresses[address]; ok {
			return entry, true
		}
	}
	return nil, false
}
