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
		log.Println("creating donations table...")
		if err := mghelper.CreateSchema(ctx, db, &donationstore.DonationDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelUniqueIndexes(ctx, db, &donationstore.DonationDao{}, "source_tx_hash"); err != nil {
			return err
		}
		// Sweeps and listings read newest-first per streamer.
		return mghelper.CreateModelIndexes(ctx, db, &donationstore.DonationDao{}, "streamer_id", "status", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping donations table...")
		return mghelper.DropTables(ctx, db, &donationstore.DonationDao{})
	})
}
