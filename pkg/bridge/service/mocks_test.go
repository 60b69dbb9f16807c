package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semilla-platform/bridge-engine/pkg/blacklist"
	"github.com/semilla-platform/bridge-engine/pkg/breaker"
	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/bridgestore"
	"github.com/semilla-platform/bridge-engine/pkg/ledger"
	"github.com/semilla-platform/bridge-engine/pkg/security"
)

// memStore is an in-memory bridgestore.Store with the same semantics as the
// postgres implementation: guarded transitions, atomic debit on lock
// creation, duplicate-hash rejection with a FAILED audit row.
type memStore struct {
	mu       sync.Mutex
	txns     map[string]*bridge.Transaction
	balances map[string]decimal.Decimal

	// failRefundErr forces FailWithRefund to fail, for refund-retry tests.
	failRefundErr error
}

func newMemStore() *memStore {
	return &memStore{
		txns:     make(map[string]*bridge.Transaction),
		balances: make(map[string]decimal.Decimal),
	}
}

func (m *memStore) setBalance(userID string, balance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = decimal.RequireFromString(balance)
}

func (m *memStore) balance(userID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *memStore) put(txn *bridge.Transaction) {
	cp := *txn
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.txns[cp.ID] = &cp
}

func (m *memStore) CreateLockPending(_ context.Context, txn *bridge.Transaction, debitTotal decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[txn.UserID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if balance.LessThan(debitTotal) {
		return ledger.ErrInsufficientBalance
	}
	m.balances[txn.UserID] = balance.Sub(debitTotal)
	m.put(txn)
	return nil
}

func (m *memStore) CreateUnlockPending(_ context.Context, txn *bridge.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.txns {
		if existing.Direction == bridge.DirectionUnlock &&
			existing.ChainCode == txn.ChainCode &&
			existing.ExternalTxHash == txn.ExternalTxHash &&
			existing.Status != bridge.StatusFailed {
			audit := *txn
			audit.Status = bridge.StatusFailed
			audit.FailureReason = bridge.ReasonDuplicateTxHash
			m.put(&audit)
			return bridgestore.ErrDuplicateTxHash
		}
	}
	m.put(txn)
	return nil
}

func (m *memStore) Transition(_ context.Context, id string, direction bridge.Direction, from, to bridge.Status, fields bridgestore.TransitionFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, direction, from, to, fields)
}

func (m *memStore) transitionLocked(id string, direction bridge.Direction, from, to bridge.Status, fields bridgestore.TransitionFields) error {
	if !bridge.CanTransition(direction, from, to) {
		return bridgestore.ErrInvalidStateTransition
	}
	txn, ok := m.txns[id]
	if !ok || txn.Status != from {
		return bridgestore.ErrStorageConflict
	}
	txn.Status = to
	txn.UpdatedAt = time.Now()
	if fields.MintTxHash != "" {
		txn.MintTxHash = fields.MintTxHash
	}
	if fields.FailureReason != "" {
		txn.FailureReason = fields.FailureReason
	}
	if fields.Completed {
		now := time.Now()
		txn.CompletedAt = &now
	}
	return nil
}

func (m *memStore) FailWithRefund(_ context.Context, id string, direction bridge.Direction, from bridge.Status, reason, userID string, refund decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRefundErr != nil {
		return m.failRefundErr
	}
	fields := bridgestore.TransitionFields{FailureReason: reason, Completed: true}
	if err := m.transitionLocked(id, direction, from, bridge.StatusFailed, fields); err != nil {
		return err
	}
	m.balances[userID] = m.balances[userID].Add(refund)
	return nil
}

func (m *memStore) CompleteUnlockWithCredit(_ context.Context, id, userID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := bridgestore.TransitionFields{Completed: true}
	if err := m.transitionLocked(id, bridge.DirectionUnlock, bridge.StatusVerified, bridge.StatusUnlocked, fields); err != nil {
		return err
	}
	m.balances[userID] = m.balances[userID].Add(amount)
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (*bridge.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[id]
	if !ok {
		return nil, bridgestore.ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (m *memStore) ListUserTransactions(_ context.Context, userID string, limit int) ([]*bridge.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*bridge.Transaction
	for _, txn := range m.txns {
		if txn.UserID == userID && len(out) < limit {
			cp := *txn
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListStaleTransactions(_ context.Context, cutoff time.Time) ([]*bridge.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*bridge.Transaction
	for _, txn := range m.txns {
		if !txn.Status.IsTerminal() && txn.UpdatedAt.Before(cutoff) {
			cp := *txn
			out = append(out, &cp)
		}
	}
	return out, nil
}

// age rewinds a transaction's updated_at, for sweeper tests.
func (m *memStore) age(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn, ok := m.txns[id]; ok {
		txn.UpdatedAt = txn.UpdatedAt.Add(-d)
	}
}

// MockAdapter is a mock implementation of bridge.ChainAdapter
type MockAdapter struct {
	VerifyBurnFunc func(ctx context.Context, chainCode, txHash string, minAmount decimal.Decimal) (*bridge.BurnVerification, error)
	SubmitMintFunc func(ctx context.Context, chainCode, address string, amount decimal.Decimal) (*bridge.MintReceipt, error)
}

func (m *MockAdapter) VerifyBurn(ctx context.Context, chainCode, txHash string, minAmount decimal.Decimal) (*bridge.BurnVerification, error) {
	if m.VerifyBurnFunc != nil {
		return m.VerifyBurnFunc(ctx, chainCode, txHash, minAmount)
	}
	return &bridge.BurnVerification{Confirmed: true, Amount: minAmount}, nil
}

func (m *MockAdapter) SubmitMint(ctx context.Context, chainCode, address string, amount decimal.Decimal) (*bridge.MintReceipt, error) {
	if m.SubmitMintFunc != nil {
		return m.SubmitMintFunc(ctx, chainCode, address, amount)
	}
	return &bridge.MintReceipt{TxHash: "0xminted"}, nil
}

// mockChainStore is a mock implementation of chains.Store
type mockChainStore struct {
	chains []*bridge.SupportedChain
}

func (m *mockChainStore) ListChains(_ context.Context) ([]*bridge.SupportedChain, error) {
	return m.chains, nil
}

func (m *mockChainStore) UpsertChain(_ context.Context, chain *bridge.SupportedChain) error {
	m.chains = append(m.chains, chain)
	return nil
}

func (m *mockChainStore) SetChainEnabled(_ context.Context, chainCode string, enabled bool) error {
	for _, c := range m.chains {
		if c.ChainCode == chainCode {
			c.Enabled = enabled
		}
	}
	return nil
}

// mockBlacklistStore is a mock implementation of blacklist.Store
type mockBlacklistStore struct {
	entries []*blacklist.Entry
}

func (m *mockBlacklistStore) AddEntry(_ context.Context, entryType blacklist.EntryType, value, reason string) (*blacklist.Entry, error) {
	entry := &blacklist.Entry{
		ID:      uuid.NewString(),
		Type:    entryType,
		Value:   value,
		Reason:  reason,
		Active:  true,
		AddedAt: time.Now(),
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *mockBlacklistStore) DeactivateEntry(_ context.Context, id string) error {
	for _, e := range m.entries {
		if e.ID == id {
			e.Active = false
			return nil
		}
	}
	return blacklist.ErrEntryNotFound
}

func (m *mockBlacklistStore) ListEntries(_ context.Context, activeOnly bool) ([]*blacklist.Entry, error) {
	var out []*blacklist.Entry
	for _, e := range m.entries {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// mockBreakerStore is a mock implementation of breaker.Store
type mockBreakerStore struct {
	mu    sync.Mutex
	state *breaker.State
}

func (m *mockBreakerStore) LoadState(_ context.Context) (*breaker.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *mockBreakerStore) SaveState(_ context.Context, state *breaker.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.state = &cp
	return nil
}

// mockEventStore is a mock implementation of security.Store
type mockEventStore struct {
	mu     sync.Mutex
	events []*security.Event
}

func (m *mockEventStore) InsertEvent(_ context.Context, event *security.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventStore) ListEvents(_ context.Context, limit int) ([]*security.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.events) {
		limit = len(m.events)
	}
	return m.events[:limit], nil
}

func (m *mockEventStore) ListEventsSince(_ context.Context, since time.Time) ([]*security.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*security.Event
	for _, e := range m.events {
		if e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventStore) CountEvents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *mockEventStore) ResolveEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.Resolved = true
			return nil
		}
	}
	return security.ErrEventNotFound
}

func (m *mockEventStore) eventsOfType(eventType security.EventType) []*security.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*security.Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
