package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/blockshift/internal/transform"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// transformResult is the JSON form of transform's output.
type transformResult struct {
	Tree            types.ContentTree `json:"tree"`
	Changed         int               `json:"changed"`
	AlreadyMigrated int               `json:"already_migrated"`
	Skipped         []transform.Skip  `json:"skipped,omitempty"`
	Lossy           bool              `json:"lossy"`
}

func newTransformCmd(e *env) *cobra.Command {
	var name, direction string
	cmd := &cobra.Command{
		Use:   "transform --migration <name> [file]",
		Short: "Apply a migration's content rules to a JSON tree",
		Long: "Read a StreamField content tree from file (or stdin when file is omitted\n" +
			"or '-') and print it rewritten by the named migration. No database is used.",
		Args: args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			if name == "" {
				return userErrorf("--migration is required")
			}
			dir, err := types.ParseDirection(direction)
			if err != nil {
				return usageError{err}
			}
			src := "-"
			if len(a) == 1 {
				src = a[0]
			}
			return runTransform(cmd, e, name, dir, src)
		},
	}
	cmd.Flags().StringVarP(&name, "migration", "m", "", "migration whose rules to apply")
	cmd.Flags().StringVarP(&direction, "direction", "d", types.Forwards.String(), "forwards or backwards")
	return cmd
}

func runTransform(cmd *cobra.Command, e *env, name string, dir types.Direction, src string) error {
	reg, err := e.registry()
	if err != nil {
		return err
	}
	m, err := reg.Get(name)
	if err != nil {
		return err
	}
	if len(m.BlockRules) == 0 && len(m.TreeRules) == 0 {
		return userErrorf("migration %s has no content rules; it only rewrites columns", name)
	}
	policy, err := e.parsePolicy()
	if err != nil {
		return err
	}
	tr, err := m.Transformer(
		transform.WithLogger(e.log.With(zap.String("migration", name))),
		transform.WithParsePolicy(policy),
	)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, src)
	if err != nil {
		return err
	}
	tree, err := types.ParseTree(data)
	if err != nil {
		return err
	}
	res, err := tr.Apply(tree, dir)
	if err != nil {
		return err
	}
	e.log.Info("tree transformed",
		zap.String("migration", name),
		zap.Stringer("direction", dir),
		zap.Int("changed", res.Changed),
		zap.Int("already_migrated", res.AlreadyMigrated),
		zap.Int("skipped", len(res.Skipped)),
	)
	if res.Lossy {
		e.log.Warn("lossy rules left content unrestored", zap.String("migration", name))
	}

	if e.flags.jsonMode {
		return printJSON(out(cmd), transformResult{
			Tree:            res.Tree,
			Changed:         res.Changed,
			AlreadyMigrated: res.AlreadyMigrated,
			Skipped:         res.Skipped,
			Lossy:           res.Lossy,
		})
	}
	return printJSON(out(cmd), res.Tree)
}

func readInput(cmd *cobra.Command, src string) ([]byte, error) {
	if src == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, usageError{fmt.Errorf("read %s: %w", src, err)}
	}
	return data, nil
}
