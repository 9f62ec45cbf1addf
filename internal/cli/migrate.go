package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Provision the database schema",
		Long: `Create the queue, dedupe ledger, audit log, comment and directory tables.

Safe to run repeatedly. Needed only when database.auto_migrate is false.

Example:
  narrator migrate --db ./narrator.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Path, store.WithoutMigrations())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.Migrate(ctx); err != nil {
		return out.Fail("migrate", err)
	}
	version, err := st.SchemaVersion(ctx)
	if err != nil {
		return out.Fail("read schema version", err)
	}

	return out.Success(
		map[string]any{"path": cfg.Database.Path, "schemaVersion": version},
		fmt.Sprintf("Schema at version %d (%s)", version, cfg.Database.Path))
}
