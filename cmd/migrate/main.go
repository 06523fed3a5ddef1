package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/legal-triage/internal/config"
	appmigrations "github.com/wolfman30/legal-triage/migrations"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

const usage = "usage: migrate [up | down [n] | version | force <version>]"

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("migrate")

	if err := run(cfg.DatabaseURL, os.Args[1:], os.Stdout); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

// step applies one subcommand to an open migrator.
type step func(m *migrate.Migrate, args []string, out io.Writer) error

var steps = map[string]step{
	"up":      stepUp,
	"down":    stepDown,
	"force":   stepForce,
	"version": stepVersion,
}

func run(databaseURL string, args []string, out io.Writer) error {
	name := "up"
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}
	fn, ok := steps[name]
	if !ok {
		return fmt.Errorf("unknown command %q; %s", name, usage)
	}

	m, closeFn, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(m, args, out)
}

func openMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("reach database: %w", err)
	}

	target, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("build migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

func stepUp(m *migrate.Migrate, _ []string, out io.Writer) error {
	if err := ignoreNoChange(m.Up()); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return printVersion(m, out)
}

func stepDown(m *migrate.Migrate, args []string, out io.Writer) error {
	n, err := optionalCount(args)
	if err != nil {
		return err
	}
	if err := ignoreNoChange(m.Steps(-n)); err != nil {
		return fmt.Errorf("migrate down %d: %w", n, err)
	}
	return printVersion(m, out)
}

func stepForce(m *migrate.Migrate, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("force needs a version")
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("force version %q: %w", args[0], err)
	}
	if err := m.Force(v); err != nil {
		return fmt.Errorf("force version %d: %w", v, err)
	}
	return printVersion(m, out)
}

func stepVersion(m *migrate.Migrate, _ []string, out io.Writer) error {
	return printVersion(m, out)
}

func printVersion(m *migrate.Migrate, out io.Writer) error {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		_, err = fmt.Fprintln(out, "no migrations applied")
		return err
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	}
	_, err = fmt.Fprintf(out, "schema at version %d (dirty=%t)\n", v, dirty)
	return err
}

// optionalCount parses the step count for down, defaulting to one.
func optionalCount(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("down needs a positive step count, got %q", args[0])
	}
	return n, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
