package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/waypointgames/waypoint/internal/server"
	"github.com/waypointgames/waypoint/pkg/database/migrate"
)

func runMigrate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "waypoint.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: waypoint migrate [-config path] up|down|version|steps N")
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return migrateCommand(db, fs.Args(), stdout)
}

func migrateCommand(db *sql.DB, args []string, stdout io.Writer) error {
	switch args[0] {
	case "up":
		return migrate.Run(db)
	case "down":
		return migrate.Down(db)
	case "version":
		version, dirty, err := migrate.Version(db)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "version %d (dirty: %t)\n", version, dirty)
		return nil
	case "steps":
		if len(args) < 2 {
			return errors.New("steps requires a count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[1], err)
		}
		return migrate.Steps(db, n)
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
}
