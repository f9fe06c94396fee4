package main

import (
	"fmt"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/audit"
	"github.com/foxzi/ingestdesk/internal/web/repository"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired sessions and old journal entries",
	Long: `Delete expired sessions and journal entries older than the retention.
The running server does the same every hour; use this while it is stopped.`,
	RunE: runCleanup,
}

var cleanupJournalDays int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupJournalDays, "journal-days", 0, "Delete journal entries older than N days (default: journal.retention)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()

	sessions, err := repository.NewSessionRepository(database.DB).DeleteExpired()
	if err != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	fmt.Fprintf(out, "Expired sessions deleted: %d\n", sessions)

	retention := cfg.Journal.Retention
	if cleanupJournalDays > 0 {
		retention = time.Duration(cleanupJournalDays) * 24 * time.Hour
	}

	journal, err := audit.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer journal.Close()

	pruned, err := journal.Prune(runContext(cmd), retention)
	if err != nil {
		return fmt.Errorf("failed to cleanup journal: %w", err)
	}
	fmt.Fprintf(out, "Journal entries older than %s deleted: %d\n", retention, pruned)

	fmt.Fprintln(out, "\nCleanup completed")
	return nil
}
