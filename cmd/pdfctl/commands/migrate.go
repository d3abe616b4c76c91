package commands

import (
	"github.com/spf13/cobra"

	"github.com/pdfme/pdf-pipeline/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the extracted_data table for the configured driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}

		printSuccess(cmd.OutOrStdout(), "Migrated %s database", cfg.Database.Driver)
		return nil
	},
}
