package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/builder"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/config"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/directory"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/ingestion"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/match"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/report"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/validator"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ClientConfig string
	NoMail       bool
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run --config <client.yaml> <data.csv>",
		Short: "Ingest one student data file",
		Long: `Ingest one student data file for one client.

Exits 0 when the run completes, even if individual rows failed or were
ambiguous, and 2 when the run cannot start.

Example:
  patron-ingest run --config clients/spokane.yaml spokane-2026-10-14.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.ClientConfig, "config", "c", "", "client configuration file (required)")
	cmd.Flags().BoolVar(&opts.NoMail, "no-mail", false, "print the report without mailing it")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *RunOptions, dataPath string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if err := cfg.RequireDirectory(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	client, err := config.LoadClient(opts.ClientConfig)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid client configuration", err)
	}
	registry, err := validator.NewRegistry(client)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid client configuration", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	logName := fmt.Sprintf("%s-%s", client.ID, stamp)
	logger, logFile, err := openRunLog(cfg.LogDir, logName, cmd.ErrOrStderr(), opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()
	if err := store.CreateTables(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare database", err)
	}

	remote := directory.NewHTTPClient(cfg.DirectoryBaseURL, cfg.DirectoryClientID, cfg.DirectoryAppID, cfg.DirectoryTimeout)
	token, err := remote.Authenticate(ctx, directory.Credentials{Login: cfg.DirectoryLogin, Password: cfg.DirectoryPassword})
	if err != nil {
		return WrapExitError(ExitCommandError, "directory login failed", err)
	}
	logger.Info("authenticated", "client", client.ID, "directory", cfg.DirectoryBaseURL)

	audit, err := report.CreateAuditFile(filepath.Join(cfg.LogDir, logName+"-audit.csv"))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open audit file", err)
	}
	defer audit.Close()

	service := ingestion.NewIngestionService(ingestion.Components{
		Client:    client,
		Validator: registry,
		Matcher: match.NewEngine(remote, token, match.Options{
			ResultCap:      cfg.MatchResultCap,
			FieldsToReturn: match.FieldsToReturn(client),
			Logger:         logger,
		}),
		Builder: builder.New(client, registry),
		Writer: ingestion.NewRetryWriter(remote, token, ingestion.RetryConfig{
			MaxAttempts:     cfg.WriteMaxAttempts,
			InitialInterval: cfg.WriteBackoff,
		}, logger),
		Auditor: audit,
		Store:   store,
		Logger:  logger,
	})

	run, stats, err := service.Execute(ctx, dataPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "run aborted", err)
	}

	if err := report.Render(cmd.OutOrStdout(), client, run, stats); err != nil {
		logger.Error("failed to print report", "error", err)
	}
	if opts.NoMail {
		return nil
	}

	msg, err := report.RunMessage(cfg.SMTPFrom, client, run, stats)
	if err != nil {
		logger.Error("failed to build report mail", "error", err)
		return nil
	}
	if err := report.NewMailer(cfg, logger).Send(ctx, msg); err != nil {
		logger.Error("failed to mail report", "error", err)
	}
	return nil
}
