// Package commands implements cuadre-admin: schema migrations, reference
// list maintenance, record lookup and mirror status for the ledger backends.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cuadre/internal/backend"
	"cuadre/internal/cli"
	"cuadre/internal/config"
	applog "cuadre/internal/log"
)

var (
	envFile     string
	backendName string
	cfg         *config.Config
	logger      *applog.Logger
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cuadre-admin",
		Short:         "Maintenance tasks for the cash reconciliation ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				cli.LoadEnvFile(envFile)
			} else {
				cli.LoadEnvFile()
			}
			logger = applog.New(applog.Config{
				Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
				Component: applog.ComponentAdmin,
				Output:    cmd.ErrOrStderr(),
			})
			applog.SetDefault(logger)

			// The backend factory validates what each command actually opens;
			// server settings such as the port or sessions do not apply here.
			cfg = config.Load()
			if backendName != "" {
				cfg.DataBackend = backendName
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().StringVar(&backendName, "backend", "", fmt.Sprintf("override DATA_BACKEND (%v)", backend.GetBackendTypeStrings()))

	root.AddCommand(migrateCmd(), configCmd(), recordsCmd(), syncCmd())
	return root
}

// openBackend builds the configured ledger without the AMQP publisher:
// admin writes are not mirrored.
func openBackend(ctx context.Context) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bc.AMQPURL = ""
	return backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bc)
}
