package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/workspace-authz/config"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/internal/observability"
	"github.com/upb/workspace-authz/repositories"
	"github.com/upb/workspace-authz/repositories/postgres"
	"go.uber.org/zap"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// cli holds the collaborators shared by every subcommand. The loaders are
// replaced in tests.
type cli struct {
	out         io.Writer
	loadConfig  func(ctx context.Context) (*config.Config, error)
	openFactory func(cfg config.DatabaseConfig, logger *zap.Logger) (*postgres.RepositoryFactory, error)

	output   string
	logLevel string
}

func newCLI(out io.Writer) *cli {
	return &cli{
		out:         out,
		loadConfig:  config.New,
		openFactory: postgres.NewRepositoryFactory,
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "authzctl",
		Short:         "Inspect and manage workspace role assignments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.output != outputTable && c.output != outputJSON {
				return fmt.Errorf("unsupported output format %q (use %s or %s)", c.output, outputTable, outputJSON)
			}
			return nil
		},
	}
	root.SetOut(c.out)

	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputTable, "Output format (table, json)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		c.catalogCommand(),
		c.checkCommand(),
		c.roleCommand(),
		c.listCommand(),
		c.assignCommand(),
		c.revokeCommand(),
		c.auditCommand(),
		c.migrateCommand(),
		c.tokenCommand(),
	)
	return root
}

// store is the database-backed toolbox handed to subcommands
type store struct {
	cfg         *config.Config
	db          *postgres.DB
	assignments repositories.RoleAssignmentRepository
	auditLogs   repositories.AuditRepository
	txMgr       repositories.TransactionManager
	resolver    *auth.Resolver
	logger      *zap.Logger
}

func (c *cli) newLogger() (*zap.Logger, error) {
	return observability.NewLogger(observability.LoggerConfig{Level: c.logLevel, Format: "console"})
}

// withStore opens the database for the duration of fn
func (c *cli) withStore(cmd *cobra.Command, fn func(ctx context.Context, s *store) error) error {
	ctx := cmd.Context()

	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := c.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	factory, err := c.openFactory(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = factory.Close() }()

	repos := factory.NewRepositories()
	return fn(ctx, &store{
		cfg:         cfg,
		db:          factory.GetDB(),
		assignments: repos.RoleAssignments,
		auditLogs:   repos.AuditLogs,
		txMgr:       factory.GetTransactionManager(),
		resolver:    auth.NewResolver(repos.RoleAssignments, logger),
		logger:      logger,
	})
}

// render prints v as indented JSON, or calls table with a tabwriter
func (c *cli) render(v interface{}, table func(w io.Writer)) error {
	if c.output == outputJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}
