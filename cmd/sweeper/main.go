// The sweeper runs one reconciliation sweep and exits. It exists for cron
// style deployments and for operators who want to force a full pass without
// restarting the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/pkg/alerts"
	"github.com/arcstream/cctp-middleware/pkg/chains"
	"github.com/arcstream/cctp-middleware/pkg/config"
	"github.com/arcstream/cctp-middleware/pkg/donationstore"
	"github.com/arcstream/cctp-middleware/pkg/iris"
	"github.com/arcstream/cctp-middleware/pkg/pgutil"
	"github.com/arcstream/cctp-middleware/pkg/receipt"
	reconcilerpkg "github.com/arcstream/cctp-middleware/pkg/reconciler"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting settlement sweep")

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	registry := chains.Default()
	if cfg.Chains.RegistryFile != "" {
		registry, err = chains.LoadFile(cfg.Chains.RegistryFile)
		if err != nil {
			logger.Fatal("Failed to load chain registry", zap.Error(err))
		}
	}

	irisClient, err := iris.NewClient(&iris.Config{
		BaseURL:        cfg.Iris.BaseURL,
		RequestTimeout: cfg.Iris.RequestTimeout,
	}, iris.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create attestation client", zap.Error(err))
	}

	store := donationstore.NewStore(db)

	// No overlay clients in a one-shot sweep; alerts go nowhere but the
	// latest-donation endpoint still reflects completions.
	hub := alerts.NewHub(cfg.Alerts.SubscriberBuffer, logger)

	rec := reconcilerpkg.New(store, receipt.NewChecker(logger), irisClient, hub, registry, cfg.Reconciliation.SweepLimit, logger)

	updated, err := rec.SweepAll(context.Background())
	if err != nil {
		logger.Fatal("Sweep failed", zap.Error(err))
	}

	logger.Info("Sweep finished", zap.Int("updated", updated))
}
