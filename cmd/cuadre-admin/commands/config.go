package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cuadre/internal/ledger"
)

// parseColumn maps a list name to its configuration column.
func parseColumn(name string) (int, error) {
	switch strings.ToLower(name) {
	case "stores", "tiendas":
		return ledger.ColumnStores, nil
	case "banks", "bancos":
		return ledger.ColumnBanks, nil
	default:
		return 0, fmt.Errorf("unknown list %q: use stores or banks", name)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or replace the store and bank lists",
	}
	cmd.AddCommand(configListCmd(), configReplaceCmd())
	return cmd
}

func configListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list stores|banks",
		Short: "Print one reference list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			column, err := parseColumn(args[0])
			if err != nil {
				return err
			}
			res, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			values, err := res.Backend.ListConfigValues(cmd.Context(), column)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func configReplaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replace stores|banks FILE",
		Short: "Replace a reference list with the lines of FILE (- for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			column, err := parseColumn(args[0])
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var lines []string
			sc := bufio.NewScanner(in)
			for sc.Scan() {
				lines = append(lines, sc.Text())
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			values := ledger.CleanValues(lines)
			if len(values) == 0 {
				return fmt.Errorf("%s has no values", args[1])
			}

			res, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			w, ok := res.Backend.(ledger.ConfigWriter)
			if !ok {
				return fmt.Errorf("backend %s does not support replacing lists; edit the spreadsheet instead", cfg.DataBackend)
			}
			if err := w.ReplaceConfigValues(cmd.Context(), column, values); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replaced %s with %d values\n", args[0], len(values))
			return nil
		},
	}
}
