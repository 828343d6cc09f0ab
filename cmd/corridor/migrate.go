package main

import (
	"fmt"
	"io"

	"github.com/banshee-data/corridor.report/internal/db"
)

const migrateUsage = `Usage: corridor [flags] migrate <action>

Actions:
  status   Show the current schema version
  up       Apply all pending migrations
  down     Roll back the most recent migration
`

// runMigrate handles the 'migrate' subcommand.
func runMigrate(args []string, store *db.DB, w io.Writer) error {
	if len(args) != 1 {
		fmt.Fprint(w, migrateUsage)
		return fmt.Errorf("migrate: expected one action")
	}

	switch args[0] {
	case "up":
		if err := store.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := store.MigrateDown(); err != nil {
			return err
		}
	case "status":
	case "help":
		fmt.Fprint(w, migrateUsage)
		return nil
	default:
		fmt.Fprint(w, migrateUsage)
		return fmt.Errorf("migrate: unknown action %q", args[0])
	}

	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}
