package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/bridgestore"
	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating bridge_transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &bridgestore.TransactionDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateIndexes(ctx, db, "bridge_transactions", "user_id", "status", "chain_code"); err != nil {
			return err
		}
		// One live UNLOCK per burn hash. FAILED rows are excluded so a
		// rejected claim can be retried and audit rows can accumulate.
		return mghelper.CreatePartialUniqueIndex(ctx, db,
			"bridge_transactions",
			"uq_bridge_transactions_unlock_hash",
			"chain_code, external_tx_hash",
			"direction = 'UNLOCK' AND status <> 'FAILED'",
		)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bridge_transactions table...")
		return mghelper.DropTables(ctx, db, &bridgestore.TransactionDao{})
	})
}
