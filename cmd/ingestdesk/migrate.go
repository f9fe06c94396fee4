package main

import (
	"fmt"

	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed successfully")
	return nil
}

// openDatabase loads the configuration and opens the migrated database.
func openDatabase() (*config.Config, *db.DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, err
	}
	return cfg, database, nil
}
