package commands

import (
	"github.com/spf13/cobra"

	"github.com/chepyr/go-task-api/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, dbConn, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer dbConn.Close()

		if err := db.Migrate(cmd.Context(), dbConn); err != nil {
			log.Error().Err(err).Msg("migration failed")
			return err
		}
		log.Info().Msg("schema is up to date")
		return nil
	},
}
