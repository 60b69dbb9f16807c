package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/blacklist"
	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating blacklist_entries table...")
		if err := mghelper.CreateSchema(ctx, db, &blacklist.EntryDao{}); err != nil {
			return err
		}
		// One active entry per identity; deactivated rows stay for audit.
		return mghelper.CreatePartialUniqueIndex(ctx, db,
			"blacklist_entries",
			"uq_blacklist_entries_active",
			"entry_type, value",
			"active",
		)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping blacklist_entries table...")
		return mghelper.DropTables(ctx, db, &blacklist.EntryDao{})
	})
}
