package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blockshift/internal/sqlite"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// initResult is the JSON form of init's output.
type initResult struct {
	ConfigDir string `json:"config_dir"`
	DataDir   string `json:"data_dir"`
	Backend   string `json:"backend"`
	Database  string `json:"database,omitempty"`
	Demo      bool   `json:"demo"`
}

func newInitCmd(e *env) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize blockshift",
		Long: "Create the configuration and data directories, write a default config.yaml\n" +
			"and create the migration ledger table in the configured database.\n\n" +
			"With --demo, also create a small Wagtail-shaped SQLite database with\n" +
			"fixture pages to try the built-in migrations on.",
		Args: args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, e, demo)
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "seed a demo database (sqlite backend only)")
	return cmd
}

func runInit(cmd *cobra.Command, e *env, demo bool) error {
	if demo && e.settings.Backend != types.BackendSQLite {
		return userErrorf("--demo needs the sqlite backend, configured backend is %q", e.settings.Backend)
	}
	for _, dir := range []string{e.layout.DataDir, e.settings.PlansDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	ctx := cmd.Context()
	err := e.withStore(ctx, func(store types.Store) error {
		if !demo {
			return nil
		}
		s, ok := store.(*sqlite.Store)
		if !ok {
			return userErrorf("--demo needs the sqlite backend")
		}
		if err := s.SeedDemo(ctx); err != nil {
			return fmt.Errorf("seed demo database: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	res := initResult{
		ConfigDir: e.layout.ConfigDir,
		DataDir:   e.layout.DataDir,
		Backend:   e.settings.Backend,
		Demo:      demo,
	}
	if e.settings.Backend == types.BackendSQLite {
		res.Database = e.settings.Database
	}
	if e.flags.jsonMode {
		return printJSON(out(cmd), res)
	}
	fmt.Fprintf(out(cmd), "blockshift initialized (config: %s, backend: %s)\n", res.ConfigDir, res.Backend)
	if demo {
		fmt.Fprintf(out(cmd), "demo database: %s\n", res.Database)
	}
	return nil
}
