// Package memstore provides an in-memory types.Store. It backs the runner
// tests and lets plans be tried against fixture rows without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Store is a mutex-guarded set of tables, revisions and ledger entries.
// Values are deep-copied on the way in and out.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]map[int64]map[string]any
	revisions map[int64]types.Revision
	ledger    []types.LedgerEntry
	closed    bool

	// SaveHook, when set, runs before every Save. A non-nil error is
	// returned from Save and the row is left unchanged.
	SaveHook func(table string, id int64, fields map[string]any) error

	// Saves counts successful Save calls.
	Saves int
}

var _ types.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		tables:    map[string]map[int64]map[string]any{},
		revisions: map[int64]types.Revision{},
	}
}

// Put inserts or replaces a row.
func (s *Store) Put(table string, id int64, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		rows = map[int64]map[string]any{}
		s.tables[table] = rows
	}
	rows[id] = types.CloneValue(fields).(map[string]any)
}

// PutRevision inserts or replaces a revision. Revisions with a higher ID are
// considered newer.
func (s *Store) PutRevision(rev types.Revision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev.Content = append([]byte(nil), rev.Content...)
	s.revisions[rev.ID] = rev
}

// Row returns a copy of a stored row, for assertions.
func (s *Store) Row(table string, id int64) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][id]
	if !ok {
		return nil, false
	}
	return types.CloneValue(row).(map[string]any), true
}

func (s *Store) Scan(ctx context.Context, table, key string, fields []string, fn func(types.Row) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return types.ErrStoreClosed
	}
	ids := make([]int64, 0, len(s.tables[table]))
	for id := range s.tables[table] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := s.Get(ctx, table, key, id, fields)
		if err != nil {
			// Deleted since the key list was taken.
			continue
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(_ context.Context, table, _ string, id int64, fields []string) (types.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Row{}, types.ErrStoreClosed
	}
	stored, ok := s.tables[table][id]
	if !ok {
		return types.Row{}, fmt.Errorf("%w: %s %d", types.ErrNotFound, table, id)
	}
	row := types.Row{ID: id, Fields: make(map[string]any, len(fields))}
	for _, f := range fields {
		row.Fields[f] = types.CloneValue(stored[f])
	}
	return row, nil
}

func (s *Store) Save(_ context.Context, table, _ string, id int64, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	stored, ok := s.tables[table][id]
	if !ok {
		return fmt.Errorf("%w: %s %d", types.ErrNotFound, table, id)
	}
	if s.SaveHook != nil {
		if err := s.SaveHook(table, id, fields); err != nil {
			return err
		}
	}
	for k, v := range fields {
		cv, err := types.ColumnValue(v)
		if err != nil {
			return err
		}
		stored[k] = types.CloneValue(cv)
	}
	s.Saves++
	return nil
}

func (s *Store) LatestRevision(_ context.Context, objectID int64) (types.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Revision{}, types.ErrStoreClosed
	}
	var (
		latest types.Revision
		found  bool
	)
	for _, rev := range s.revisions {
		if rev.ObjectID == objectID && (!found || rev.ID > latest.ID) {
			latest, found = rev, true
		}
	}
	if !found {
		return types.Revision{}, fmt.Errorf("%w: revision of %d", types.ErrNotFound, objectID)
	}
	latest.Content = append([]byte(nil), latest.Content...)
	return latest, nil
}

func (s *Store) SaveRevision(_ context.Context, rev types.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	stored, ok := s.revisions[rev.ID]
	if !ok {
		return fmt.Errorf("%w: revision %d", types.ErrNotFound, rev.ID)
	}
	stored.Content = append([]byte(nil), rev.Content...)
	s.revisions[rev.ID] = stored
	return nil
}

func (s *Store) Applied(context.Context) ([]types.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.ErrStoreClosed
	}
	return append([]types.LedgerEntry(nil), s.ledger...), nil
}

func (s *Store) Record(_ context.Context, e types.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	for i := range s.ledger {
		if s.ledger[i].Name == e.Name {
			s.ledger[i] = e
			return nil
		}
	}
	s.ledger = append(s.ledger, e)
	return nil
}

func (s *Store) Forget(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	for i := range s.ledger {
		if s.ledger[i].Name == name {
			s.ledger = append(s.ledger[:i], s.ledger[i+1:]...)
			return nil
		}
	}
	return nil
}

// Close marks the store closed; later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
