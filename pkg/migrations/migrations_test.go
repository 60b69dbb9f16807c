package migrations

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/semilla-platform/bridge-engine/pkg/bridgestore"
	"github.com/semilla-platform/bridge-engine/pkg/migrations/bridgedb"
	"github.com/semilla-platform/bridge-engine/pkg/pgutil"
)

func setupMigratedDB(t *testing.T) (context.Context, *bun.DB, *migrate.Migrator) {
	t.Helper()
	requireDockerAccess(t)

	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, bridgedb.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	return ctx, db, migrator
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

	t.Skip("docker is not available, skipping testcontainer-based test")
}

func TestBridgeDBMigrations_Apply(t *testing.T) {
	ctx, db, migrator := setupMigratedDB(t)

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	expectedTables := []string{
		"supported_chains",
		"ledger_accounts",
		"bridge_transactions",
		"blacklist_entries",
		"security_events",
		"breaker_state",
		"bun_migrations",
	}
	for _, table := range expectedTables {
		pgutil.AssertTableExists(t, db, table)
	}

	pgutil.AssertIndexExists(t, db, "idx_bridge_transactions_user_id")
	pgutil.AssertIndexExists(t, db, "idx_bridge_transactions_status")
	pgutil.AssertIndexExists(t, db, "idx_bridge_transactions_chain_code")
	pgutil.AssertIndexExists(t, db, "uq_bridge_transactions_unlock_hash")
	pgutil.AssertIndexExists(t, db, "uq_blacklist_entries_active")
	pgutil.AssertIndexExists(t, db, "idx_security_events_created_at")
	pgutil.AssertIndexExists(t, db, "idx_security_events_severity")
}

func TestMigrations_Idempotency(t *testing.T) {
	ctx, db, migrator := setupMigratedDB(t)

	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	pgutil.AssertTableExists(t, db, "bridge_transactions")
	pgutil.AssertTableExists(t, db, "supported_chains")
}

func TestMigrations_Rollback(t *testing.T) {
	ctx, db, migrator := setupMigratedDB(t)

	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "bridge_transactions")
	pgutil.AssertTableExists(t, db, "breaker_state")

	// All migrations apply in one group, so rollback drops everything.
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	pgutil.AssertTableNotExists(t, db, "breaker_state")
	pgutil.AssertTableNotExists(t, db, "security_events")
	pgutil.AssertTableNotExists(t, db, "blacklist_entries")
	pgutil.AssertTableNotExists(t, db, "bridge_transactions")
	pgutil.AssertTableNotExists(t, db, "ledger_accounts")
	pgutil.AssertTableNotExists(t, db, "supported_chains")
}

func TestSeedData_Applied(t *testing.T) {
	ctx, db, migrator := setupMigratedDB(t)

	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	pgutil.AssertRowCount(t, db, "supported_chains", 3)

	var seeded []struct {
		ChainCode string `bun:"chain_code"`
		MinAmount string `bun:"min_amount"`
		Fee       string `bun:"fee"`
		Enabled   bool   `bun:"enabled"`
	}
	err := db.NewSelect().
		TableExpr("supported_chains").
		Column("chain_code", "min_amount", "fee", "enabled").
		Order("chain_code ASC").
		Scan(ctx, &seeded)
	if err != nil {
		t.Fatalf("Failed to query seed data: %v", err)
	}

	if len(seeded) != 3 {
		t.Fatalf("Expected 3 seeded chains, got %d", len(seeded))
	}
	if seeded[0].ChainCode != "CELO" || seeded[1].ChainCode != "GNOSIS" || seeded[2].ChainCode != "POLYGON" {
		t.Errorf("Unexpected seed chains: %+v", seeded)
	}
	for _, chain := range seeded {
		if !chain.Enabled {
			t.Errorf("Expected seeded chain %s to be enabled", chain.ChainCode)
		}
	}

	// NUMERIC(38,18) pads with trailing zeros.
	if seeded[2].MinAmount != "10" && seeded[2].MinAmount != "10.000000000000000000" {
		t.Errorf("Expected POLYGON min amount 10, got %s", seeded[2].MinAmount)
	}
	if seeded[2].Fee != "2" && seeded[2].Fee != "2.000000000000000000" {
		t.Errorf("Expected POLYGON fee 2, got %s", seeded[2].Fee)
	}
}

func TestUnlockHashConstraint_Applied(t *testing.T) {
	ctx, db, migrator := setupMigratedDB(t)

	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	unlockRow := func(status string) *bridgestore.TransactionDao {
		return &bridgestore.TransactionDao{
			ID:             uuid.NewString(),
			UserID:         "did:semilla:alice",
			Direction:      "UNLOCK",
			ChainCode:      "POLYGON",
			Amount:         "25",
			Fee:            "2",
			ExternalTxHash: "0xburn1",
			Status:         status,
		}
	}

	if _, err := db.NewInsert().Model(unlockRow("PENDING")).Exec(ctx); err != nil {
		t.Fatalf("Failed to insert first unlock row: %v", err)
	}

	// Second live row for the same burn hash violates the partial unique index.
	if _, err := db.NewInsert().Model(unlockRow("PENDING")).Exec(ctx); err == nil {
		t.Error("Expected duplicate live unlock row to be rejected")
	}

	// FAILED audit rows are outside the index predicate.
	if _, err := db.NewInsert().Model(unlockRow("FAILED")).Exec(ctx); err != nil {
		t.Errorf("Expected FAILED row with duplicate hash to insert, got: %v", err)
	}

	// LOCK rows never participate in the index.
	lockRow := unlockRow("PENDING")
	lockRow.ID = uuid.NewString()
	lockRow.Direction = "LOCK"
	if _, err := db.NewInsert().Model(lockRow).Exec(ctx); err != nil {
		t.Errorf("Expected LOCK row with duplicate hash to insert, got: %v", err)
	}
}
