package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the given path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	force := cmd.Bool("force")

	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}

	if force {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlain("  Fill in your Spotify client_id and client_secret, then run:\n")
	r.writePlain("  spotify-archiver auth login\n")

	return nil
}

// SetupDatabase initializes the run-history database and applies migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Database initialized\n")

	return nil
}
