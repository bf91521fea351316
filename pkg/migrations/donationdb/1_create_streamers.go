package donationdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/arcstream/cctp-middleware/pkg/donationstore"
	mghelper "github.com/arcstream/cctp-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating streamers table...")
		return mghelper.CreateSchema(ctx, db, &donationstore.StreamerDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping streamers table...")
		return mghelper.DropTables(ctx, db, &donationstore.StreamerDao{})
	})
}
