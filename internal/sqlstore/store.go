// Package sqlstore implements types.Store over database/sql. The SQLite and
// Postgres backends differ only in their Dialect.
//
// The database belongs to the CMS: the store never creates or alters page
// tables. The only table blockshift owns is the migration ledger, created by
// EnsureSchema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// LedgerTable records which migrations have been applied.
const LedgerTable = "blockshift_migrations"

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string
	// LedgerDDL creates LedgerTable if it does not exist.
	LedgerDDL string
	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
}

// Store implements types.Store on a database/sql handle.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	rev       types.RevisionConfig
}

var _ types.Store = (*Store)(nil)

// New wraps an open handle. cfg supplies the batch size and revision layout;
// it must already be validated.
func New(db *sql.DB, dialect Dialect, cfg types.Config) *Store {
	cfg = cfg.WithDefaults()
	return &Store{db: db, dialect: dialect, batchSize: cfg.BatchSize, rev: cfg.Revision}
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.dialect.LedgerDDL); err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for seeding and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle. Close is idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	return s.db, nil
}

// Scan walks table in key order, batchSize rows per query. Each batch is read
// completely before fn runs so that fn may write through the same store.
func (s *Store) Scan(ctx context.Context, table, key string, fields []string, fn func(types.Row) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	cols, err := selectList(table, key, fields)
	if err != nil {
		return err
	}

	first := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT ?", cols, quote(table), quote(key))
	next := fmt.Sprintf("SELECT %s FROM %s WHERE %s > ? ORDER BY %s LIMIT ?", cols, quote(table), quote(key), quote(key))

	var last int64
	started := false
	for {
		var batch []types.Row
		if started {
			batch, err = s.query(ctx, db, next, fields, last, s.batchSize)
		} else {
			batch, err = s.query(ctx, db, first, fields, s.batchSize)
		}
		if err != nil {
			return fmt.Errorf("scanning %s: %w", table, err)
		}
		for _, row := range batch {
			if err := fn(row); err != nil {
				return err
			}
		}
		if len(batch) < s.batchSize {
			return nil
		}
		last = batch[len(batch)-1].ID
		started = true
	}
}

func (s *Store) query(ctx context.Context, db *sql.DB, query string, fields []string, args ...any) ([]types.Row, error) {
	rows, err := db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		row, err := scanRow(rows, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Get reads the named fields of one row.
func (s *Store) Get(ctx context.Context, table, key string, id int64, fields []string) (types.Row, error) {
	db, err := s.conn()
	if err != nil {
		return types.Row{}, err
	}
	cols, err := selectList(table, key, fields)
	if err != nil {
		return types.Row{}, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", cols, quote(table), quote(key))
	rows, err := s.query(ctx, db, query, fields, id)
	if err != nil {
		return types.Row{}, fmt.Errorf("reading %s %d: %w", table, id, err)
	}
	if len(rows) == 0 {
		return types.Row{}, fmt.Errorf("%w: %s %d", types.ErrNotFound, table, id)
	}
	return rows[0], nil
}

// Save writes the given fields of one row in a single UPDATE.
func (s *Store) Save(ctx context.Context, table, key string, id int64, fields map[string]any) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	names := fieldNames(fields)
	if err := checkIdentifiers(append([]string{table, key}, names...)...); err != nil {
		return err
	}

	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		v, err := types.ColumnValue(fields[name])
		if err != nil {
			return fmt.Errorf("encoding %s.%s: %w", table, name, err)
		}
		sets[i] = quote(name) + " = ?"
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(table), strings.Join(sets, ", "), quote(key))
	res, err := db.ExecContext(ctx, s.bind(query), args...)
	if err != nil {
		return fmt.Errorf("saving %s %d: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", types.ErrNotFound, table, id)
	}
	return nil
}

// LatestRevision returns the most recently created revision of a page.
// Wagtail stores object_id as text, so the id is compared as a string.
func (s *Store) LatestRevision(ctx context.Context, objectID int64) (types.Revision, error) {
	db, err := s.conn()
	if err != nil {
		return types.Revision{}, err
	}
	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE CAST(%s AS TEXT) = ? ORDER BY %s DESC, id DESC LIMIT 1",
		quote(s.rev.ContentColumn), quote(s.rev.Table), quote(s.rev.ObjectColumn), quote(s.rev.CreatedColumn))

	var (
		rev     = types.Revision{ObjectID: objectID}
		content any
	)
	err = db.QueryRowContext(ctx, s.bind(query), strconv.FormatInt(objectID, 10)).Scan(&rev.ID, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Revision{}, fmt.Errorf("%w: revision of %d", types.ErrNotFound, objectID)
	}
	if err != nil {
		return types.Revision{}, fmt.Errorf("reading revision of %d: %w", objectID, err)
	}
	switch c := normalize(content).(type) {
	case string:
		rev.Content = []byte(c)
	case []byte:
		rev.Content = c
	}
	return rev, nil
}

// SaveRevision replaces the content of an existing revision.
func (s *Store) SaveRevision(ctx context.Context, rev types.Revision) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", quote(s.rev.Table), quote(s.rev.ContentColumn))
	res, err := db.ExecContext(ctx, s.bind(query), string(rev.Content), rev.ID)
	if err != nil {
		return fmt.Errorf("saving revision %d: %w", rev.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: revision %d", types.ErrNotFound, rev.ID)
	}
	return nil
}

// Applied lists ledger entries in the order they were first recorded.
func (s *Store) Applied(ctx context.Context) ([]types.LedgerEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT name, run_id, applied_at FROM "+LedgerTable+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	defer rows.Close()

	var out []types.LedgerEntry
	for rows.Next() {
		var (
			e  types.LedgerEntry
			at string
		)
		if err := rows.Scan(&e.Name, &e.RunID, &at); err != nil {
			return nil, err
		}
		if e.AppliedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Record upserts a ledger entry.
func (s *Store) Record(ctx context.Context, e types.LedgerEntry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.bind(`INSERT INTO `+LedgerTable+` (name, run_id, applied_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET run_id = excluded.run_id, applied_at = excluded.applied_at`),
		e.Name, e.RunID, e.AppliedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Name, err)
	}
	return nil
}

// Forget deletes a ledger entry.
func (s *Store) Forget(ctx context.Context, name string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.bind("DELETE FROM "+LedgerTable+" WHERE name = ?"), name); err != nil {
		return fmt.Errorf("forgetting %s: %w", name, err)
	}
	return nil
}

// bind rewrites ? placeholders for dialects that number them. Queries never
// contain a literal question mark.
func (s *Store) bind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func scanRow(rows *sql.Rows, fields []string) (types.Row, error) {
	vals := make([]any, len(fields)+1)
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return types.Row{}, err
	}

	id, ok := types.AsInt(vals[0])
	if !ok {
		return types.Row{}, fmt.Errorf("non-integer key %v", vals[0])
	}
	row := types.Row{ID: id, Fields: make(map[string]any, len(fields))}
	for i, f := range fields {
		row.Fields[f] = normalize(vals[i+1])
	}
	return row, nil
}

func selectList(table, key string, fields []string) (string, error) {
	if err := checkIdentifiers(append([]string{table, key}, fields...)...); err != nil {
		return "", err
	}
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quote(key))
	for _, f := range fields {
		cols = append(cols, quote(f))
	}
	return strings.Join(cols, ", "), nil
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !types.ValidIdentifier(n) {
			return fmt.Errorf("%w: %q", types.ErrInvalidIdentifier, n)
		}
	}
	return nil
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// normalize turns driver values into the forms rules expect: text is always
// a string and JSON columns decoded by the driver are re-encoded as text.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case map[string]any, []any:
		if enc, err := types.ColumnValue(t); err == nil {
			return enc
		}
	}
	return v
}
