// Package breaker implements the process-wide halt switch for new bridge
// operations. State is persisted so an open breaker stays open across
// restarts; closing it always requires an explicit human action.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/semilla-platform/bridge-engine/internal/metrics"
)

var (
	// ErrAlreadyClosed is returned when closing a breaker that is not open.
	ErrAlreadyClosed = errors.New("circuit breaker is not open")
)

// State is one observed generation of the breaker.
type State struct {
	Open     bool
	Reason   string
	OpenedAt *time.Time
	ClosedAt *time.Time
}

// Store persists the breaker singleton.
type Store interface {
	LoadState(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, state *State) error
}

// Breaker is the explicit owned state object gating every new bridge
// operation. Reads go through an atomic snapshot; Open/Close serialize on a
// mutex and persist before publishing.
type Breaker struct {
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	snapshot atomic.Pointer[State]
}

// New creates a breaker, restoring persisted state. A breaker opened before
// a restart must not silently close on boot.
func New(ctx context.Context, store Store, logger *zap.Logger) (*Breaker, error) {
	b := &Breaker{store: store, logger: logger}

	state, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load breaker state: %w", err)
	}
	if state == nil {
		state = &State{}
	}
	b.publish(state)

	if state.Open {
		logger.Warn("Circuit breaker restored in OPEN state",
			zap.String("reason", state.Reason))
	}
	return b, nil
}

// IsOpen reports whether new bridge operations are halted. This is the first
// gate in the orchestrator pipeline.
func (b *Breaker) IsOpen() bool {
	return b.snapshot.Load().Open
}

// State returns a copy of the current breaker state.
func (b *Breaker) State() State {
	return *b.snapshot.Load()
}

// Open halts all new bridge operations. Opening an already-open breaker
// keeps the original reason and activation time.
func (b *Breaker) Open(ctx context.Context, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.snapshot.Load()
	if current.Open {
		b.logger.Info("Circuit breaker already open, keeping original reason",
			zap.String("reason", current.Reason))
		return nil
	}

	now := time.Now()
	next := &State{
		Open:     true,
		Reason:   reason,
		OpenedAt: &now,
		ClosedAt: current.ClosedAt,
	}
	if err := b.store.SaveState(ctx, next); err != nil {
		return fmt.Errorf("failed to persist breaker open: %w", err)
	}
	b.publish(next)

	b.logger.Error("Circuit breaker OPENED", zap.String("reason", reason))
	return nil
}

// Close re-enables bridge operations. There is no automatic path here: a
// human confirms the incident is resolved before calling this.
func (b *Breaker) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.snapshot.Load()
	if !current.Open {
		return ErrAlreadyClosed
	}

	now := time.Now()
	next := &State{
		Open:     false,
		Reason:   "",
		OpenedAt: current.OpenedAt,
		ClosedAt: &now,
	}
	if err := b.store.SaveState(ctx, next); err != nil {
		return fmt.Errorf("failed to persist breaker close: %w", err)
	}
	b.publish(next)

	b.logger.Warn("Circuit breaker closed manually",
		zap.String("previous_reason", current.Reason))
	return nil
}

func (b *Breaker) publish(state *State) {
	b.snapshot.Store(state)
	if state.Open {
		metrics.BreakerOpen.Set(1)
	} else {
		metrics.BreakerOpen.Set(0)
	}
}
