package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
	"github.com/semilla-platform/bridge-engine/pkg/security"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating security_events table...")
		if err := mghelper.CreateSchema(ctx, db, &security.EventDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "security_events", "created_at", "severity")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping security_events table...")
		return mghelper.DropTables(ctx, db, &security.EventDao{})
	})
}
