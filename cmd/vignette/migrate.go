package main

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"vignette/internal/config"
	"vignette/internal/store"

	_ "modernc.org/sqlite"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect metadata schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun {
				// Opening the store applies pending migrations.
				st, err := store.Open(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if err := st.Close(); err != nil {
					return err
				}
			}

			plan, err := inspectMigrations(cfg.DBPath)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(plan)
			}
			return writeMigrationPlan(plan, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying them")
	return cmd
}

func inspectMigrations(path string) (*store.MigrationStatus, error) {
	db, err := openRawDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	plan, err := store.MigrationPlan(db)
	if err != nil {
		return nil, fmt.Errorf("inspect migrations: %w", err)
	}
	return plan, nil
}

func writeMigrationPlan(plan *store.MigrationStatus, dryRun bool) error {
	_ = writePlain("schema_version: %d of %d\n", plan.CurrentVersion, plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		if dryRun {
			return writePlain("up to date\n")
		}
		return writePlain("migrations applied\n")
	}
	_ = writePlain("pending:\n")
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}

func openRawDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return sql.Open("sqlite", u.String())
}
