// Package cli implements the blockshift command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/blockshift/internal/paths"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// env is what every subcommand runs against. It is filled in by the root
// command's PersistentPreRunE.
type env struct {
	flags    rootFlags
	layout   paths.Layout
	settings settings
	log      *zap.Logger
}

// NewRootCmd creates the top-level "blockshift" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	e := &env{log: zap.NewNop()}
	root := &cobra.Command{
		Use:   "blockshift",
		Short: "Reshape Wagtail StreamField content, forwards and backwards",
		Long: "blockshift rewrites the JSON content trees stored in Wagtail StreamField\n" +
			"columns, one block type at a time, and keeps a ledger of applied migrations.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return e.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = e.log.Sync()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&e.flags.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/blockshift)")
	pf.StringVar(&e.flags.dataDir, "data-dir", "", "data directory (default: $XDG_DATA_HOME/blockshift)")
	pf.BoolVar(&e.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(e),
		newListCmd(e),
		newMigrateCmd(e),
		newRollbackCmd(e),
		newPlanCmd(e),
		newTransformCmd(e),
		newRestoreCmd(e),
	)
	return root
}

// Execute runs the root command and returns the process exit code. An
// interrupt cancels the run between rows.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "blockshift:", err)
		return ExitCode(err)
	}
	return exitSuccess
}

// usageError marks mistakes in how the command was called.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

// userErrorf returns a usage error with a formatted message.
func userErrorf(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// args wraps a cobra argument validator so its failures count as usage errors.
func args(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := fn(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// ExitCode maps an error to the process exit code: 1 for errors the user can
// fix by changing the invocation, configuration or content, 2 for everything
// else.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ue usageError
	var verr validation.Errors
	switch {
	case errors.As(err, &ue),
		errors.As(err, &verr),
		errors.Is(err, types.ErrUnknownMigration),
		errors.Is(err, types.ErrNotApplied),
		errors.Is(err, types.ErrBackendUnknown),
		errors.Is(err, types.ErrDuplicateName),
		errors.Is(err, types.ErrDuplicateRule),
		errors.Is(err, types.ErrUnknownRuleKind),
		errors.Is(err, types.ErrInvalidTree),
		errors.Is(err, types.ErrParse):
		return exitUserError
	}
	return exitSysError
}

// out is where command results go.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
