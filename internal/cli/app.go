package cli

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/blockshift/internal/catalog"
	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/internal/plan"
	"github.com/mesh-intelligence/blockshift/internal/postgres"
	"github.com/mesh-intelligence/blockshift/internal/snapshot"
	"github.com/mesh-intelligence/blockshift/internal/sqlite"
	"github.com/mesh-intelligence/blockshift/internal/transform"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// openStore opens the configured backend.
func (e *env) openStore(ctx context.Context) (types.Store, error) {
	cfg := e.settings.Config
	switch cfg.Backend {
	case types.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case types.BackendPostgres:
		s, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q (want sqlite or postgres)", types.ErrBackendUnknown, cfg.Backend)
}

// withStore opens the store, runs fn and closes the store again.
func (e *env) withStore(ctx context.Context, fn func(types.Store) error) error {
	store, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// registry holds the built-in migrations plus those declared in the plans
// directory.
func (e *env) registry() (*migration.Registry, error) {
	reg := migration.NewRegistry()
	if err := catalog.Register(reg); err != nil {
		return nil, err
	}
	planned, err := plan.LoadDir(e.settings.PlansDir)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(planned...); err != nil {
		return nil, err
	}
	return reg, nil
}

func (e *env) parsePolicy() (transform.ParsePolicy, error) {
	p, err := transform.ParseParsePolicy(e.settings.ParseErrors)
	if err != nil {
		return p, usageError{err}
	}
	return p, nil
}

// runnerOptions collects the flags shared by migrate, rollback and plan.
type runnerOptions struct {
	dryRun    bool
	force     bool
	snapshots bool
}

// runner builds a Runner over store with the configured parse policy and
// snapshot sink.
func (e *env) runner(store types.Store, reg *migration.Registry, ro runnerOptions) (*migration.Runner, error) {
	policy, err := e.parsePolicy()
	if err != nil {
		return nil, err
	}
	opts := []migration.Option{
		migration.WithLogger(e.log),
		migration.WithParsePolicy(policy),
		migration.WithDryRun(ro.dryRun),
		migration.WithForce(ro.force),
	}
	if ro.snapshots && !ro.dryRun {
		fn, err := e.snapshotFunc()
		if err != nil {
			return nil, err
		}
		opts = append(opts, migration.WithSnapshots(fn))
	}
	return migration.NewRunner(store, reg, opts...), nil
}

// snapshotFunc writes snapshots to the snapshot directory and, when a bucket
// is configured, uploads them.
func (e *env) snapshotFunc() (migration.SnapshotFunc, error) {
	var opts []snapshot.Option
	if cfg := e.settings.Snapshot.BucketConfig; cfg.Enabled() {
		b, err := snapshot.NewBucket(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, snapshot.WithUploader(b))
	}
	dir := e.settings.Snapshot.Dir
	return func(runID, name string, d types.Direction) (migration.SnapshotWriter, error) {
		w, err := snapshot.Create(dir, runID, name, d, opts...)
		if err != nil {
			return nil, err
		}
		return w, nil
	}, nil
}
