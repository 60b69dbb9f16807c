package bridgestore

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semilla-platform/bridge-engine/pkg/bridge"
	"github.com/semilla-platform/bridge-engine/pkg/ledger"
	"github.com/semilla-platform/bridge-engine/pkg/pgutil"
	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
)

func setupStore(t *testing.T) (context.Context, *pgStore, *ledger.AccountDao) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &TransactionDao{}, &ledger.AccountDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	if err := mghelper.CreatePartialUniqueIndex(ctx, db,
		"bridge_transactions",
		"uq_bridge_transactions_unlock_hash",
		"chain_code, external_tx_hash",
		"direction = 'UNLOCK' AND status <> 'FAILED'",
	); err != nil {
		t.Fatalf("failed to create unlock hash index: %v", err)
	}

	account := &ledger.AccountDao{UserID: "did:semilla:alice", Balance: "100"}
	if _, err := db.NewInsert().Model(account).Exec(ctx); err != nil {
		t.Fatalf("failed to seed ledger account: %v", err)
	}

	return ctx, NewStore(db), account
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed bridgestore tests")
}

func newLockTxn(userID string, amount, fee string) *bridge.Transaction {
	return &bridge.Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Direction:       bridge.DirectionLock,
		ChainCode:       "POLYGON",
		Amount:          decimal.RequireFromString(amount),
		Fee:             decimal.RequireFromString(fee),
		ExternalAddress: "0x1111111111111111111111111111111111111111",
		Status:          bridge.StatusPending,
	}
}

func newUnlockTxn(userID, txHash string, amount string) *bridge.Transaction {
	return &bridge.Transaction{
		ID:             uuid.NewString(),
		UserID:         userID,
		Direction:      bridge.DirectionUnlock,
		ChainCode:      "POLYGON",
		Amount:         decimal.RequireFromString(amount),
		Fee:            decimal.Zero,
		ExternalTxHash: txHash,
		Status:         bridge.StatusPending,
	}
}

func assertBalance(t *testing.T, ctx context.Context, s *pgStore, userID, want string) {
	t.Helper()
	balance, err := ledger.NewStore(s.db).GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("balance mismatch: got %s want %s", balance, want)
	}
}

func TestBridgeStore_CreateLockPendingDebits(t *testing.T) {
	ctx, s, account := setupStore(t)

	txn := newLockTxn(account.UserID, "50", "2")
	if err := s.CreateLockPending(ctx, txn, decimal.RequireFromString("52")); err != nil {
		t.Fatalf("CreateLockPending() failed: %v", err)
	}

	assertBalance(t, ctx, s, account.UserID, "48")

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Status != bridge.StatusPending {
		t.Fatalf("expected PENDING, got %s", got.Status)
	}
	if !got.Amount.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("amount mismatch: got %s", got.Amount)
	}
}

func TestBridgeStore_CreateLockPendingRollsBackOnInsufficientBalance(t *testing.T) {
	ctx, s, account := setupStore(t)

	txn := newLockTxn(account.UserID, "200", "2")
	err := s.CreateLockPending(ctx, txn, decimal.RequireFromString("202"))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
	}

	assertBalance(t, ctx, s, account.UserID, "100")

	if _, err := s.GetTransaction(ctx, txn.ID); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected no transaction row, got: %v", err)
	}
}

func TestBridgeStore_TransitionGuardsExpectedStatus(t *testing.T) {
	ctx, s, account := setupStore(t)

	txn := newLockTxn(account.UserID, "50", "2")
	if err := s.CreateLockPending(ctx, txn, decimal.RequireFromString("52")); err != nil {
		t.Fatalf("CreateLockPending() failed: %v", err)
	}

	if err := s.Transition(ctx, txn.ID, bridge.DirectionLock, bridge.StatusPending, bridge.StatusLocked, TransitionFields{}); err != nil {
		t.Fatalf("PENDING -> LOCKED failed: %v", err)
	}

	// a second worker still expecting PENDING must lose
	err := s.Transition(ctx, txn.ID, bridge.DirectionLock, bridge.StatusPending, bridge.StatusLocked, TransitionFields{})
	if !errors.Is(err, ErrStorageConflict) {
		t.Fatalf("expected ErrStorageConflict, got: %v", err)
	}

	err = s.Transition(ctx, txn.ID, bridge.DirectionLock, bridge.StatusLocked, bridge.StatusUnlocked, TransitionFields{})
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got: %v", err)
	}

	fields := TransitionFields{MintTxHash: "0xmint", Completed: true}
	if err := s.Transition(ctx, txn.ID, bridge.DirectionLock, bridge.StatusLocked, bridge.StatusMinted, fields); err != nil {
		t.Fatalf("LOCKED -> MINTED failed: %v", err)
	}

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.MintTxHash != "0xmint" {
		t.Fatalf("mint_tx_hash mismatch: got %q", got.MintTxHash)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestBridgeStore_FailWithRefundRestoresBalance(t *testing.T) {
	ctx, s, account := setupStore(t)

	txn := newLockTxn(account.UserID, "50", "2")
	if err := s.CreateLockPending(ctx, txn, decimal.RequireFromString("52")); err != nil {
		t.Fatalf("CreateLockPending() failed: %v", err)
	}
	if err := s.Transition(ctx, txn.ID, bridge.DirectionLock, bridge.StatusPending, bridge.StatusLocked, TransitionFields{}); err != nil {
		t.Fatalf("PENDING -> LOCKED failed: %v", err)
	}

	err := s.FailWithRefund(ctx, txn.ID, bridge.DirectionLock, bridge.StatusLocked,
		bridge.ReasonMintFailed, account.UserID, decimal.RequireFromString("52"))
	if err != nil {
		t.Fatalf("FailWithRefund() failed: %v", err)
	}

	assertBalance(t, ctx, s, account.UserID, "100")

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Status != bridge.StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if got.FailureReason != bridge.ReasonMintFailed {
		t.Fatalf("failure reason mismatch: got %q", got.FailureReason)
	}
}

func TestBridgeStore_DuplicateUnlockHashRejected(t *testing.T) {
	ctx, s, account := setupStore(t)

	first := newUnlockTxn(account.UserID, "0xburn1", "30")
	if err := s.CreateUnlockPending(ctx, first); err != nil {
		t.Fatalf("CreateUnlockPending() failed: %v", err)
	}

	second := newUnlockTxn(account.UserID, "0xburn1", "30")
	err := s.CreateUnlockPending(ctx, second)
	if !errors.Is(err, ErrDuplicateTxHash) {
		t.Fatalf("expected ErrDuplicateTxHash, got: %v", err)
	}

	// the rejected claim survives as a FAILED audit row
	got, err := s.GetTransaction(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Status != bridge.StatusFailed {
		t.Fatalf("expected FAILED audit row, got %s", got.Status)
	}
	if got.FailureReason != bridge.ReasonDuplicateTxHash {
		t.Fatalf("failure reason mismatch: got %q", got.FailureReason)
	}
}

func TestBridgeStore_ConcurrentUnlockHashRace(t *testing.T) {
	ctx, s, account := setupStore(t)

	// claims racing inside the database: the second insert blocks on the
	// in-flight index entry until the first commits, then loses
	const racers = 4
	txns := make([]*bridge.Transaction, racers)
	errs := make([]error, racers)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		txns[i] = newUnlockTxn(account.UserID, "0xburnrace", "30")
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = s.CreateUnlockPending(ctx, txns[i])
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for i := range errs {
		switch {
		case errs[i] == nil:
			winners++
		case errors.Is(errs[i], ErrDuplicateTxHash):
			got, err := s.GetTransaction(ctx, txns[i].ID)
			if err != nil {
				t.Fatalf("GetTransaction() for loser %d failed: %v", i, err)
			}
			if got.Status != bridge.StatusFailed {
				t.Fatalf("loser %d: expected FAILED audit row, got %s", i, got.Status)
			}
			if got.FailureReason != bridge.ReasonDuplicateTxHash {
				t.Fatalf("loser %d: failure reason mismatch: got %q", i, got.FailureReason)
			}
		default:
			t.Fatalf("racer %d: unexpected error: %v", i, errs[i])
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	live, err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("external_tx_hash = ?", "0xburnrace").
		Where("status <> ?", string(bridge.StatusFailed)).
		Count(ctx)
	if err != nil {
		t.Fatalf("failed to count live claims: %v", err)
	}
	if live != 1 {
		t.Fatalf("expected exactly one live claim on the hash, got %d", live)
	}
}

func TestBridgeStore_FailedUnlockFreesHashForRetry(t *testing.T) {
	ctx, s, account := setupStore(t)

	first := newUnlockTxn(account.UserID, "0xburn2", "30")
	if err := s.CreateUnlockPending(ctx, first); err != nil {
		t.Fatalf("CreateUnlockPending() failed: %v", err)
	}
	fields := TransitionFields{FailureReason: bridge.ReasonBurnNotVerified, Completed: true}
	if err := s.Transition(ctx, first.ID, bridge.DirectionUnlock, bridge.StatusPending, bridge.StatusFailed, fields); err != nil {
		t.Fatalf("PENDING -> FAILED failed: %v", err)
	}

	retry := newUnlockTxn(account.UserID, "0xburn2", "30")
	if err := s.CreateUnlockPending(ctx, retry); err != nil {
		t.Fatalf("retry after FAILED should be accepted, got: %v", err)
	}
}

func TestBridgeStore_CompleteUnlockWithCredit(t *testing.T) {
	ctx, s, account := setupStore(t)

	txn := newUnlockTxn(account.UserID, "0xburn3", "30")
	if err := s.CreateUnlockPending(ctx, txn); err != nil {
		t.Fatalf("CreateUnlockPending() failed: %v", err)
	}
	if err := s.Transition(ctx, txn.ID, bridge.DirectionUnlock, bridge.StatusPending, bridge.StatusVerified, TransitionFields{}); err != nil {
		t.Fatalf("PENDING -> VERIFIED failed: %v", err)
	}

	if err := s.CompleteUnlockWithCredit(ctx, txn.ID, account.UserID, decimal.RequireFromString("30")); err != nil {
		t.Fatalf("CompleteUnlockWithCredit() failed: %v", err)
	}

	assertBalance(t, ctx, s, account.UserID, "130")

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Status != bridge.StatusUnlocked {
		t.Fatalf("expected UNLOCKED, got %s", got.Status)
	}
}

func TestBridgeStore_ListStaleTransactions(t *testing.T) {
	ctx, s, account := setupStore(t)

	txn := newLockTxn(account.UserID, "50", "2")
	if err := s.CreateLockPending(ctx, txn, decimal.RequireFromString("52")); err != nil {
		t.Fatalf("CreateLockPending() failed: %v", err)
	}

	stale, err := s.ListStaleTransactions(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStaleTransactions() failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh transaction must not be stale, got %d", len(stale))
	}

	stale, err = s.ListStaleTransactions(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListStaleTransactions() failed: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale transaction, got %d", len(stale))
	}
	if stale[0].ID != txn.ID {
		t.Fatalf("stale transaction id mismatch")
	}
}

func TestBridgeStore_ListUserTransactionsOrdersNewestFirst(t *testing.T) {
	ctx, s, account := setupStore(t)

	first := newLockTxn(account.UserID, "10", "2")
	if err := s.CreateLockPending(ctx, first, decimal.RequireFromString("12")); err != nil {
		t.Fatalf("CreateLockPending() failed: %v", err)
	}
	second := newUnlockTxn(account.UserID, "0xburn4", "5")
	if err := s.CreateUnlockPending(ctx, second); err != nil {
		t.Fatalf("CreateUnlockPending() failed: %v", err)
	}

	history, err := s.ListUserTransactions(ctx, account.UserID, 50)
	if err != nil {
		t.Fatalf("ListUserTransactions() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history))
	}

	other, err := s.ListUserTransactions(ctx, "did:semilla:bob", 50)
	if err != nil {
		t.Fatalf("ListUserTransactions() failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no transactions for other user, got %d", len(other))
	}
}
