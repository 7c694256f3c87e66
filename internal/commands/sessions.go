package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chepyr/go-task-api/internal/db"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage login sessions",
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, dbConn, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer dbConn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.QueryTimeout)
		defer cancel()
		n, err := db.NewSessionRepository(dbConn).DeleteExpired(ctx, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("failed to prune sessions")
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(pruneCmd)
}

// sweepSessions deletes expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, repo db.SessionRepositoryInterface, interval, timeout time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, timeout)
			n, err := repo.DeleteExpired(sweepCtx, time.Now().UTC())
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("failed to sweep expired sessions")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("swept expired sessions")
			}
		}
	}
}
