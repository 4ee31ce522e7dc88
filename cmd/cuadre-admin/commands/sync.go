package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"cuadre/internal/ledger/google"
	"cuadre/internal/storage"
	"cuadre/internal/worker"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect or drive the sqlite to Sheets mirror",
	}
	cmd.AddCommand(syncStatusCmd(), syncRunCmd())
	return cmd
}

func syncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count sqlite rows per mirror status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			stats, err := repo.SyncStats(cmd.Context())
			if err != nil {
				return err
			}
			statuses := make([]string, 0, len(stats))
			for s := range stats {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d\n", s, stats[s])
			}
			return nil
		},
	}
}

// syncRunCmd drains the pending rows once, without the AMQP consumer.
func syncRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Mirror every pending sqlite row to Google Sheets now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.GoogleSpreadsheetID == "" {
				return fmt.Errorf("GOOGLE_SPREADSHEET_ID is required")
			}
			repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			sheets, err := google.New(cmd.Context(), google.Config{
				SpreadsheetID:   cfg.GoogleSpreadsheetID,
				LedgerSheet:     cfg.GoogleLedgerSheet,
				ConfigSheet:     cfg.GoogleConfigSheet,
				CredentialsJSON: cfg.GoogleServiceAccountJSON,
				CredentialsFile: cfg.GoogleServiceAccountFile,
			})
			if err != nil {
				return err
			}

			w := worker.NewSyncWorker(repo, sheets, sheets, cfg.SyncBatchSize)
			if err := w.StartupSyncCheck(cmd.Context()); err != nil {
				return err
			}
			stats, err := repo.SyncStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced=%d pending=%d error=%d\n",
				stats[storage.SyncStatusSynced], stats[storage.SyncStatusPending], stats[storage.SyncStatusError])
			return nil
		},
	}
}
