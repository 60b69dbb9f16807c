package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/breaker"
	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating breaker_state table...")
		return mghelper.CreateSchema(ctx, db, &breaker.StateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping breaker_state table...")
		return mghelper.DropTables(ctx, db, &breaker.StateDao{})
	})
}
