package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	EnvFile string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "patron-ingest",
		Short: "Reconcile student rosters with the library patron directory",
		Long: `patron-ingest reads a district student CSV, matches every student
against the library patron directory and creates or updates patrons.
Unchanged students are skipped using a local checksum store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.EnvFile, cmd.Flags().Changed("env-file"))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "file with environment settings")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSetupCommand(opts))
	cmd.AddCommand(NewExpireCommand(opts))

	return cmd
}

// loadEnvFile loads settings into the environment. A missing default file is
// fine, a missing file that was asked for is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}
