// Package chains resolves per-chain bridging policy (minimum amount, fee).
// The set of supported chains changes rarely and is read on every request, so
// lookups go through an in-memory snapshot refreshed from storage on demand.
package chains

import (
	"context"
	"errors"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
)

// ErrUnsupportedChain is returned when a chain code is unknown or disabled.
var ErrUnsupportedChain = errors.New("unsupported chain")

// ErrChainNotFound is returned when an admin edit targets an unknown chain code.
var ErrChainNotFound = errors.New("chain not found")

// Store defines the persistence interface for supported chains.
type Store interface {
	ListChains(ctx context.Context) ([]*bridge.SupportedChain, error)
	UpsertChain(ctx context.Context, chain *bridge.SupportedChain) error
	SetChainEnabled(ctx context.Context, chainCode string, enabled bool) error
}
