package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cuadre/internal/core"
	"cuadre/internal/ledger"
)

func recordsCmd() *cobra.Command {
	var store, date string
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the rows saved for a store and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := core.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--fecha must be YYYY-MM-DD: %w", err)
			}
			res, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			finder, ok := res.Backend.(ledger.RecordFinder)
			if !ok {
				return fmt.Errorf("backend %s does not support record lookup", cfg.DataBackend)
			}
			rows, err := finder.FindRecords(cmd.Context(), core.RecordID(store, d))
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no records for %s\n", core.RecordID(store, d))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSAVED AT\tDECLARED\tBREAKDOWN\tDIFFERENCE")
			for _, row := range rows {
				f, err := row.Form()
				if err != nil {
					fmt.Fprintf(tw, "%s\t%s\t%s\t?\t%v\n", row.ID, row.SavedAt, row.DeclaredTotal, err)
					continue
				}
				r := core.Reconcile(f)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.ID, row.SavedAt, r.DeclaredTotal, r.BreakdownTotal, r.Difference)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&store, "tienda", "", "store name")
	cmd.Flags().StringVar(&date, "fecha", "", "record date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("tienda")
	_ = cmd.MarkFlagRequired("fecha")
	return cmd
}
