package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/ledger"
	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating ledger_accounts table...")
		return mghelper.CreateSchema(ctx, db, &ledger.AccountDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ledger_accounts table...")
		return mghelper.DropTables(ctx, db, &ledger.AccountDao{})
	})
}
