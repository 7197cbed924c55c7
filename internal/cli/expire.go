package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/config"
)

type ExpireOptions struct {
	*RootOptions
	Days int
}

func NewExpireCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpireOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Forget checksums not seen in the last N days",
		Long: `Remove stored checksums for students not seen in a data file for --days.
Students that reappear afterwards are matched and written again.

Defaults to CHECKSUM_RETENTION_DAYS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

			days := opts.Days
			if !cmd.Flags().Changed("days") {
				cfg, err := config.New()
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid configuration", err)
				}
				days = cfg.ChecksumRetentionDays
			}
			if days < 1 {
				return WrapExitError(ExitCommandError, "invalid retention", fmt.Errorf("--days must be positive, got %d", days))
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			before := time.Now().UTC().AddDate(0, 0, -days)
			removed, err := store.ExpireChecksums(commandContext(cmd), before)
			if err != nil {
				return fmt.Errorf("failed to expire checksums: %w", err)
			}
			logger.Info("checksums expired", "before", before.Format(time.RFC3339), "removed", removed)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d checksums not seen in %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", 0, "retention in days")

	return cmd
}
