package cli

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blockshift/internal/snapshot"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

func newRestoreCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Write a snapshot's values back",
		Long: "Restore every value captured in a snapshot file, or in an s3://bucket/object\n" +
			"snapshot in the configured bucket, and update the ledger to match.",
		Args: args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			ctx := cmd.Context()
			file, cleanup, err := e.fetchSnapshot(ctx, a[0])
			if err != nil {
				return err
			}
			defer cleanup()

			return e.withStore(ctx, func(store types.Store) error {
				sum, err := snapshot.RestoreFile(ctx, store, file, e.log)
				if err != nil {
					return err
				}
				if e.flags.jsonMode {
					return printJSON(out(cmd), sum)
				}
				fmt.Fprintf(out(cmd), "restored %s %s (run %s): %d rows, %d fields, %d revisions\n",
					sum.Migration, sum.Direction, sum.RunID, sum.Rows, sum.Fields, sum.Revisions)
				return nil
			})
		},
	}
}

// fetchSnapshot returns a local path for src, downloading s3:// locations
// into the snapshot directory first.
func (e *env) fetchSnapshot(ctx context.Context, src string) (string, func(), error) {
	bucket, object, ok := snapshot.ParseLocation(src)
	if !ok {
		if _, err := os.Stat(src); err != nil {
			return "", nil, usageError{fmt.Errorf("snapshot %s: %w", src, err)}
		}
		return src, func() {}, nil
	}

	cfg := e.settings.Snapshot.BucketConfig
	if cfg.Endpoint == "" {
		return "", nil, userErrorf("restoring %s needs snapshot.endpoint in config", src)
	}
	cfg.Bucket = bucket
	b, err := snapshot.NewBucket(cfg)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(e.settings.Snapshot.Dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.CreateTemp(e.settings.Snapshot.Dir, ".fetch-*-"+path.Base(object))
	if err != nil {
		return "", nil, fmt.Errorf("create download file: %w", err)
	}
	f.Close()
	cleanup := func() { os.Remove(f.Name()) }
	if err := b.Fetch(ctx, src, f.Name()); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("download %s: %w", src, err)
	}
	return f.Name(), cleanup, nil
}
