package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// runFlags registers --force and --snapshot on a run command. The
// snapshot default comes from config, so it is read after loading.
func runFlags(cmd *cobra.Command, ro *runnerOptions) {
	cmd.Flags().BoolVar(&ro.force, "force", false, "ignore the ledger")
	cmd.Flags().BoolVar(&ro.snapshots, "snapshot", true, "snapshot overwritten values before writing (default from config)")
}

// resolve fills option defaults that depend on configuration.
func (ro runnerOptions) resolve(cmd *cobra.Command, e *env) runnerOptions {
	if !cmd.Flags().Changed("snapshot") {
		ro.snapshots = e.settings.Snapshot.Enabled
	}
	return ro
}

func newMigrateCmd(e *env) *cobra.Command {
	var ro runnerOptions
	cmd := &cobra.Command{
		Use:   "migrate [name...]",
		Short: "Apply migrations forwards",
		Long: "Apply the named migrations, or every pending migration, in name order.\n" +
			"Migrations already in the ledger are skipped unless --force is given.",
		Args: args(cobra.ArbitraryArgs),
		RunE: func(cmd *cobra.Command, names []string) error {
			return runMigrate(cmd, e, ro.resolve(cmd, e), names)
		},
	}
	cmd.Flags().BoolVar(&ro.dryRun, "dry-run", false, "report what would change without writing")
	runFlags(cmd, &ro)
	return cmd
}

func newPlanCmd(e *env) *cobra.Command {
	var ro runnerOptions
	cmd := &cobra.Command{
		Use:   "plan [name...]",
		Short: "Show what migrate would change, without writing",
		Args:  args(cobra.ArbitraryArgs),
		RunE: func(cmd *cobra.Command, names []string) error {
			ro.dryRun = true
			return runMigrate(cmd, e, ro, names)
		},
	}
	cmd.Flags().BoolVar(&ro.force, "force", false, "include migrations already in the ledger")
	return cmd
}

func runMigrate(cmd *cobra.Command, e *env, ro runnerOptions, names []string) error {
	reg, err := e.registry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return e.withStore(ctx, func(store types.Store) error {
		r, err := e.runner(store, reg, ro)
		if err != nil {
			return err
		}
		reports, runErr := r.Migrate(ctx, names...)
		if err := printReports(out(cmd), e.flags.jsonMode, reports); err != nil {
			return err
		}
		return runErr
	})
}

func newRollbackCmd(e *env) *cobra.Command {
	var ro runnerOptions
	cmd := &cobra.Command{
		Use:   "rollback <name>",
		Short: "Run one applied migration backwards",
		Long: "Run the named migration backwards and remove it from the ledger.\n" +
			"Lossy migrations roll back with a warning; their snapshot restores the rest.",
		Args: args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			ro = ro.resolve(cmd, e)
			reg, err := e.registry()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return e.withStore(ctx, func(store types.Store) error {
				r, err := e.runner(store, reg, ro)
				if err != nil {
					return err
				}
				rep, runErr := r.Rollback(ctx, a[0])
				var reports []migration.Report
				if rep.Migration != "" {
					reports = append(reports, rep)
				}
				if err := printReports(out(cmd), e.flags.jsonMode, reports); err != nil {
					return err
				}
				return runErr
			})
		},
	}
	cmd.Flags().BoolVar(&ro.dryRun, "dry-run", false, "report what would change without writing")
	runFlags(cmd, &ro)
	return cmd
}
