package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"

	appmigrations "github.com/wolfman30/clinic-rx/migrations"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

func newMigrateApp() *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "manage the clinic records schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Usage:   "postgres connection string",
			},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		// Bare `migrate` keeps its old meaning.
		Action: runUp,
		Commands: []*cli.Command{
			{Name: "up", Usage: "apply all pending migrations", Action: runUp},
			{Name: "down", Usage: "roll back one migration", Action: runDown},
			{
				Name:      "force",
				Usage:     "mark a version as applied without running it",
				ArgsUsage: "<version>",
				Action:    runForce,
			},
			{Name: "version", Usage: "print the applied version", Action: runVersion},
		},
	}
}

func runUp(c *cli.Context) error {
	return withMigrator(c, func(m *migrate.Migrate, logger *logging.Logger) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info("migrations complete")
		return nil
	})
}

func runDown(c *cli.Context) error {
	return withMigrator(c, func(m *migrate.Migrate, logger *logging.Logger) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("rolled back one migration")
		return nil
	})
}

func runForce(c *cli.Context) error {
	version, err := parseVersion(c.Args().First())
	if err != nil {
		return err
	}
	return withMigrator(c, func(m *migrate.Migrate, logger *logging.Logger) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("forced schema version", "version", version)
		return nil
	})
}

func runVersion(c *cli.Context) error {
	return withMigrator(c, func(m *migrate.Migrate, _ *logging.Logger) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(c.App.Writer, "no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "version %d (dirty=%t)\n", version, dirty)
		return nil
	})
}

func parseVersion(raw string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &version); err != nil {
		return 0, fmt.Errorf("invalid version %q", raw)
	}
	if version < 0 {
		return 0, fmt.Errorf("invalid version %q", raw)
	}
	return version, nil
}

func withMigrator(c *cli.Context, fn func(*migrate.Migrate, *logging.Logger) error) error {
	logger := logging.NewWithWriter(c.App.ErrWriter, c.String("log-level")).Component("migrate")

	databaseURL := strings.TrimSpace(c.String("database-url"))
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m, logger)
}
