package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/blockshift/internal/logging"
	"github.com/mesh-intelligence/blockshift/internal/transform"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// SnapshotWriter receives the previous value of everything a run is about to
// overwrite.
type SnapshotWriter interface {
	CaptureField(table, key string, id int64, field string, value any) error
	CaptureRevision(rev types.Revision) error
	// Close finishes the snapshot. It runs whether the migration succeeded
	// or not, since rows written before a failure stay written.
	Close(ctx context.Context) (location string, err error)
}

// SnapshotFunc opens a snapshot for one run.
type SnapshotFunc func(runID, migration string, dir types.Direction) (SnapshotWriter, error)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the run logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = logging.OrNop(l) }
}

// WithParsePolicy sets how date and format parse failures are handled.
func WithParsePolicy(p transform.ParsePolicy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithDryRun makes runs compute their report without writing anything.
func WithDryRun(dry bool) Option {
	return func(r *Runner) { r.dryRun = dry }
}

// WithForce ignores the ledger: applied migrations run forwards again and
// unapplied ones may be rolled back.
func WithForce(force bool) Option {
	return func(r *Runner) { r.force = force }
}

// WithSnapshots captures overwritten values through fn.
func WithSnapshots(fn SnapshotFunc) Option {
	return func(r *Runner) { r.snapshots = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner applies registered migrations to a store, one row at a time.
type Runner struct {
	store     types.Store
	registry  *Registry
	log       *zap.Logger
	policy    transform.ParsePolicy
	dryRun    bool
	force     bool
	snapshots SnapshotFunc
	now       func() time.Time
}

// NewRunner returns a runner over store and registry.
func NewRunner(store types.Store, registry *Registry, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		registry: registry,
		log:      zap.NewNop(),
		policy:   transform.ParseFail,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status is a migration with its ledger entry, if applied.
type Status struct {
	Migration Migration
	Applied   *types.LedgerEntry
}

// Status lists every registered migration with its ledger state.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	var out []Status
	for _, m := range r.registry.All() {
		st := Status{Migration: m}
		if e, ok := applied[m.Name]; ok {
			st.Applied = &e
		}
		out = append(out, st)
	}
	return out, nil
}

// Migrate runs migrations forwards in name order. With no names it runs every
// registered migration. Migrations already in the ledger are reported as
// such and skipped unless the runner is forced. The first failure stops the
// run; the reports of the migrations before it are returned with the error.
func (r *Runner) Migrate(ctx context.Context, names ...string) ([]Report, error) {
	todo, err := r.selectMigrations(names)
	if err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	var reports []Report
	for _, m := range todo {
		if _, ok := applied[m.Name]; ok && !r.force {
			r.log.Info("migration already applied", zap.String("migration", m.Name))
			reports = append(reports, Report{Migration: m.Name, Direction: types.Forwards, DryRun: r.dryRun, AlreadyApplied: true})
			continue
		}
		rep, err := r.Run(ctx, m, types.Forwards)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Rollback runs one applied migration backwards and removes it from the
// ledger. Rolling back a lossy migration succeeds but leaves the lossy
// parts of the content as they are; the report says so.
func (r *Runner) Rollback(ctx context.Context, name string) (Report, error) {
	m, err := r.registry.Get(name)
	if err != nil {
		return Report{}, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return Report{}, err
	}
	if _, ok := applied[name]; !ok && !r.force {
		return Report{}, fmt.Errorf("%w: %s", types.ErrNotApplied, name)
	}
	if m.Lossy() {
		r.log.Warn("rolling back a lossy migration; some content will not be restored",
			zap.String("migration", name))
	}
	return r.Run(ctx, m, types.Backwards)
}

// Run applies one migration in one direction regardless of the ledger, and
// updates the ledger when it succeeds.
func (r *Runner) Run(ctx context.Context, m Migration, dir types.Direction) (rep Report, err error) {
	start := r.now()
	rep = Report{Migration: m.Name, Direction: dir, RunID: newRunID(), DryRun: r.dryRun}
	log := r.log.With(
		zap.String("migration", m.Name),
		zap.Stringer("direction", dir),
		zap.String("run_id", rep.RunID),
	)

	tr, err := m.Transformer(transform.WithLogger(log), transform.WithParsePolicy(r.policy))
	if err != nil {
		return rep, err
	}
	version, err := r.schemaVersion(ctx, m.Table)
	if err != nil {
		return rep, err
	}

	var snap SnapshotWriter
	if r.snapshots != nil && !r.dryRun {
		if snap, err = r.snapshots(rep.RunID, m.Name, dir); err != nil {
			return rep, fmt.Errorf("opening snapshot: %w", err)
		}
		defer func() {
			loc, cerr := snap.Close(ctx)
			rep.Snapshot = loc
			if cerr != nil && err == nil {
				err = fmt.Errorf("closing snapshot: %w", cerr)
			}
		}()
	}

	log.Info("migration started", zap.String("table", m.Table), zap.Bool("dry_run", r.dryRun))
	rr := rowRunner{
		runner:  r,
		m:       m,
		dir:     dir,
		tr:      tr,
		snap:    snap,
		version: version,
		rep:     &rep,
		log:     log,
	}
	err = r.store.Scan(ctx, m.Table, m.Key, m.Fields(), func(row types.Row) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return rr.row(ctx, row)
	})
	rep.Duration = r.now().Sub(start)
	if err != nil {
		log.Error("migration failed", zap.Error(err), zap.Int("updated", rep.Updated))
		return rep, fmt.Errorf("migration %s %s: %w", m.Name, dir, err)
	}

	if rep.Lossy {
		log.Warn("lossy rules left content unrestored", zap.Int("scanned", rep.Scanned))
	}
	if !r.dryRun {
		if dir == types.Forwards {
			err = r.store.Record(ctx, types.LedgerEntry{Name: m.Name, RunID: rep.RunID, AppliedAt: r.now().UTC()})
		} else {
			err = r.store.Forget(ctx, m.Name)
		}
		if err != nil {
			return rep, fmt.Errorf("updating ledger: %w", err)
		}
	}

	log.Info("migration finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("updated", rep.Updated),
		zap.Int("unchanged", rep.Unchanged),
		zap.Int("already_migrated", rep.AlreadyMigrated),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("revisions_synced", rep.RevisionsSynced),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (r *Runner) selectMigrations(names []string) ([]Migration, error) {
	if len(names) == 0 {
		return r.registry.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, err := r.registry.Get(n); err != nil {
			return nil, err
		}
		want[n] = true
	}
	var out []Migration
	for _, m := range r.registry.All() {
		if want[m.Name] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Runner) applied(ctx context.Context) (map[string]types.LedgerEntry, error) {
	entries, err := r.store.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	out := make(map[string]types.LedgerEntry, len(entries))
	for _, e := range entries {
		out[e.Name] = e
	}
	return out, nil
}

// schemaVersion is the name of the latest applied migration on table.
func (r *Runner) schemaVersion(ctx context.Context, table string) (string, error) {
	entries, err := r.store.Applied(ctx)
	if err != nil {
		return "", fmt.Errorf("reading ledger: %w", err)
	}
	version := ""
	for _, e := range entries {
		m, err := r.registry.Get(e.Name)
		if err != nil || m.Table != table {
			continue
		}
		if e.Name > version {
			version = e.Name
		}
	}
	return version, nil
}

// rowRunner carries the state of one Run across rows.
type rowRunner struct {
	runner  *Runner
	m       Migration
	dir     types.Direction
	tr      *transform.Transformer
	snap    SnapshotWriter
	version string
	rep     *Report
	log     *zap.Logger
}

func (rr *rowRunner) row(ctx context.Context, row types.Row) error {
	rr.rep.Scanned++
	rec := types.Record{
		Table:         rr.m.Table,
		Key:           rr.m.Key,
		ID:            row.ID,
		SchemaVersion: rr.version,
		Fields:        row.Fields,
	}
	tr := rr.tr.With(zap.Int64("row", row.ID))
	changes := make(map[string]any)

	for _, field := range rr.m.StreamFields {
		tree, err := fieldTree(row.Fields[field])
		if err != nil {
			rr.skipField(row.ID, field, err)
			continue
		}
		res, err := tr.Apply(tree, rr.dir)
		if err != nil {
			return fmt.Errorf("row %d field %s: %w", row.ID, field, err)
		}
		rr.absorb(row.ID, field, res)
		if res.Modified() {
			changes[field] = res.Tree
		}
	}

	for _, rule := range rr.m.RecordRules {
		if rr.dir == types.Backwards && rule.Reversibility() == types.Lossy {
			rr.rep.Lossy = true
			continue
		}
		var (
			out map[string]any
			err error
		)
		if rr.dir == types.Forwards {
			out, err = rule.Forwards(ctx, rec, rr.runner.store)
		} else {
			out, err = rule.Backwards(ctx, rec, rr.runner.store)
		}
		switch {
		case errors.Is(err, types.ErrAlreadyMigrated):
			rr.rep.AlreadyMigrated++
			continue
		case err != nil:
			return fmt.Errorf("row %d rule %s: %w", row.ID, rule.Name(), err)
		}
		for k, v := range out {
			if !types.EqualValues(row.Fields[k], v) {
				changes[k] = v
			}
		}
	}

	if len(changes) == 0 {
		rr.rep.Unchanged++
	} else {
		if err := rr.write(ctx, row, changes); err != nil {
			return err
		}
		rr.rep.Updated++
	}

	if rr.m.SyncRevision && len(rr.m.StreamFields) > 0 {
		return rr.syncRevision(ctx, tr, row.ID)
	}
	return nil
}

func (rr *rowRunner) write(ctx context.Context, row types.Row, changes map[string]any) error {
	if rr.runner.dryRun {
		return nil
	}
	if rr.snap != nil {
		for field := range changes {
			if err := rr.snap.CaptureField(rr.m.Table, rr.m.Key, row.ID, field, row.Fields[field]); err != nil {
				return fmt.Errorf("snapshot row %d: %w", row.ID, err)
			}
		}
	}
	if err := rr.runner.store.Save(ctx, rr.m.Table, rr.m.Key, row.ID, changes); err != nil {
		return fmt.Errorf("row %d: %w", row.ID, err)
	}
	return nil
}

// syncRevision applies the transformer to the stream fields stored in the
// latest revision of the page.
func (rr *rowRunner) syncRevision(ctx context.Context, tr *transform.Transformer, id int64) error {
	rev, err := rr.runner.store.LatestRevision(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("row %d: %w", id, err)
	}

	decoded, err := types.DecodeValue(rev.Content)
	if err != nil {
		rr.log.Warn("skipping unreadable revision", zap.Int64("row", id), zap.Int64("revision", rev.ID), zap.Error(err))
		return nil
	}
	content, ok := decoded.(map[string]any)
	if !ok {
		rr.log.Warn("skipping unreadable revision", zap.Int64("row", id), zap.Int64("revision", rev.ID))
		return nil
	}

	changed := false
	for _, field := range rr.m.StreamFields {
		v, ok := content[field]
		if !ok {
			continue
		}
		tree, err := types.TreeFromValue(v)
		if err != nil {
			rr.log.Warn("skipping revision field", zap.Int64("revision", rev.ID), zap.String("field", field), zap.Error(err))
			continue
		}
		res, err := tr.Apply(tree, rr.dir)
		if err != nil {
			return fmt.Errorf("row %d revision %d field %s: %w", id, rev.ID, field, err)
		}
		if !res.Modified() {
			continue
		}
		enc, err := res.Tree.Marshal()
		if err != nil {
			return err
		}
		// Revisions keep stream fields either as JSON text or inline.
		if _, isText := v.(string); isText {
			content[field] = string(enc)
		} else {
			content[field] = json.RawMessage(enc)
		}
		changed = true
	}
	if !changed {
		return nil
	}

	if rr.runner.dryRun {
		rr.rep.RevisionsSynced++
		return nil
	}
	if rr.snap != nil {
		if err := rr.snap.CaptureRevision(rev); err != nil {
			return fmt.Errorf("snapshot revision %d: %w", rev.ID, err)
		}
	}
	out, err := types.EncodeValue(content)
	if err != nil {
		return fmt.Errorf("encoding revision %d: %w", rev.ID, err)
	}
	rev.Content = out
	if err := rr.runner.store.SaveRevision(ctx, rev); err != nil {
		return fmt.Errorf("row %d revision %d: %w", id, rev.ID, err)
	}
	rr.rep.RevisionsSynced++
	return nil
}

func (rr *rowRunner) absorb(id int64, field string, res transform.Result) {
	rr.rep.AlreadyMigrated += res.AlreadyMigrated
	if res.Lossy {
		rr.rep.Lossy = true
	}
	for _, s := range res.Skipped {
		rr.rep.Skipped = append(rr.rep.Skipped, SkippedBlock{RowID: id, Field: field, Skip: s})
	}
}

func (rr *rowRunner) skipField(id int64, field string, err error) {
	rr.rep.Skipped = append(rr.rep.Skipped, SkippedBlock{
		RowID: id,
		Field: field,
		Skip:  transform.Skip{Index: -1, Reason: err.Error()},
	})
	rr.log.Warn("skipping field", zap.Int64("row", id), zap.String("field", field), zap.Error(err))
}

// fieldTree decodes a stream field as returned by a Store.
func fieldTree(v any) (types.ContentTree, error) {
	switch t := v.(type) {
	case nil:
		return types.ContentTree{}, nil
	case string:
		return types.ParseTree([]byte(t))
	case []byte:
		return types.ParseTree(t)
	case types.ContentTree:
		return t.Clone(), nil
	default:
		return types.TreeFromValue(t)
	}
}

// newRunID returns a time-ordered UUID v7, falling back to v4.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
