package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/labrinth-go/labrinth/pkg/config"
	"github.com/labrinth-go/labrinth/pkg/enums"
	"github.com/labrinth-go/labrinth/pkg/migrations"
	"github.com/labrinth-go/labrinth/pkg/observability"
	"github.com/labrinth-go/labrinth/pkg/schema"
	"github.com/labrinth-go/labrinth/pkg/seed"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/sirupsen/logrus"
)

var (
	catalogPath  = flag.String("catalog", "", "Seed catalog YAML file (default: built-in minecraft-java catalog)")
	skipMigrate  = flag.Bool("skip-migrations", false, "Do not apply pending migrations first")
	migrateOnly  = flag.Bool("migrate-only", false, "Apply migrations and exit without seeding")
	validateOnly = flag.Bool("validate", false, "Validate the catalog and exit")
)

func main() {
	flag.Parse()

	if *validateOnly {
		if _, err := loadCatalog(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid catalog: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Catalog is valid")
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Seeding failed")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()

	conns, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig(), log)
	if err != nil {
		return err
	}
	defer conns.Close()

	if !*skipMigrate {
		if err := migrations.RunMigrations(ctx, conns.Primary(), log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if *migrateOnly {
		return nil
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	seeder := seed.NewSeeder(schema.NewSchema(conns, log), enums.NewRegistry(conns, log), log)
	_, err = seeder.Apply(ctx, catalog)
	return err
}

func loadCatalog() (*seed.File, error) {
	if *catalogPath == "" {
		return seed.Default()
	}
	return seed.Load(*catalogPath)
}
