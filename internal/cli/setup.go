package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/config"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
)

func NewSetupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the checksum and run tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), rootOpts.Verbose)
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateTables(commandContext(cmd)); err != nil {
				return WrapExitError(ExitCommandError, "failed to create tables", err)
			}
			logger.Info("database tables are ready")
			fmt.Fprintln(cmd.OutOrStdout(), "tables created")
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openStore(cmd *cobra.Command) (database.DBManager, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	store, err := database.Open(commandContext(cmd), cfg.DatabaseURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return store, nil
}
