package chains

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

// Registry answers chain lookups from an atomic snapshot. The snapshot is
// replaced wholesale on Reload, never mutated, so lookups take no lock.
type Registry struct {
	store    Store
	snapshot atomic.Pointer[map[string]*bridge.SupportedChain]
}

// NewRegistry creates a registry and loads the initial snapshot.
func NewRegistry(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{store: store}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chain registry: %w", err)
	}
	return r, nil
}

// Reload refreshes the snapshot from storage. Called at startup and after
// admin edits to the chain table.
func (r *Registry) Reload(ctx context.Context) error {
	list, err := r.store.ListChains(ctx)
	if err != nil {
		return err
	}

	snapshot := make(map[string]*bridge.SupportedChain, len(list))
	for _, c := range list {
		snapshot[c.ChainCode] = c
	}
	r.snapshot.Store(&snapshot)
	return nil
}

// Lookup resolves a chain code to its bridging policy. Disabled chains are
// treated as unsupported so an admin can drain one chain without tripping
// the global breaker.
func (r *Registry) Lookup(chainCode string) (*bridge.SupportedChain, error) {
	snapshot := r.snapshot.Load()
	if snapshot == nil {
		return nil, ErrUnsupportedChain
	}
	chain, ok := (*snapshot)[chainCode]
	if !ok || !chain.Enabled {
		return nil, ErrUnsupportedChain
	}
	return chain, nil
}

// List returns the enabled chains in the current snapshot.
func (r *Registry) List() []*bridge.SupportedChain {
	snapshot := r.snapshot.Load()
	if snapshot == nil {
		return nil
	}
	result := make([]*bridge.SupportedChain, 0, len(*snapshot))
	for _, c := range *snapshot {
		if c.Enabled {
			result = append(result, c)
		}
	}
	return result
}
