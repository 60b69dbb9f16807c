package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/semilla-platform/bridge-engine/pkg/chains"
	mghelper "github.com/semilla-platform/bridge-engine/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating supported_chains table...")
		if err := mghelper.CreateSchema(ctx, db, &chains.ChainDao{}); err != nil {
			return err
		}
		seed := []any{
			&chains.ChainDao{ChainCode: "POLYGON", DisplayName: "Polygon PoS", MinAmount: "10", Fee: "2", Enabled: true},
			&chains.ChainDao{ChainCode: "CELO", DisplayName: "Celo", MinAmount: "5", Fee: "1", Enabled: true},
			&chains.ChainDao{ChainCode: "GNOSIS", DisplayName: "Gnosis Chain", MinAmount: "10", Fee: "1.5", Enabled: true},
		}
		return mghelper.InsertEntry(ctx, db, seed...)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping supported_chains table...")
		return mghelper.DropTables(ctx, db, &chains.ChainDao{})
	})
}
