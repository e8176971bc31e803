package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("BLOCKSHIFT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("BLOCKSHIFT_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := Open(ctx, types.Config{Backend: types.BackendPostgres, DSN: dsn, BatchSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	db := s.DB()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS bs_test_pages`,
		`CREATE TABLE bs_test_pages (page_ptr_id BIGINT PRIMARY KEY, body JSONB NOT NULL, title TEXT)`,
		`INSERT INTO bs_test_pages VALUES (1, '[]', 'one'), (2, '[{"type":"quote","value":"q"}]', 'two'), (3, '[]', NULL)`,
		`DELETE FROM blockshift_migrations WHERE name LIKE 'bs_test.%'`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return s
}

func TestPostgresScanAndSave(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	err := s.Scan(ctx, "bs_test_pages", "page_ptr_id", []string{"body", "title"}, func(r types.Row) error {
		ids = append(ids, r.ID)
		assert.IsType(t, "", r.Fields["body"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	require.NoError(t, s.Save(ctx, "bs_test_pages", "page_ptr_id", 1, map[string]any{
		"body": []any{map[string]any{"type": "quote", "value": "new"}},
	}))
	row, err := s.Get(ctx, "bs_test_pages", "page_ptr_id", 1, []string{"body"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"quote","value":"new"}]`, row.Fields["body"].(string))

	err = s.Save(ctx, "bs_test_pages", "page_ptr_id", 99, map[string]any{"title": "x"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPostgresLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Record(ctx, types.LedgerEntry{Name: "bs_test.0001", RunID: "r", AppliedAt: at}))
	require.NoError(t, s.Record(ctx, types.LedgerEntry{Name: "bs_test.0001", RunID: "r2", AppliedAt: at}))

	entries, err := s.Applied(ctx)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Name == "bs_test.0001" {
			found = true
			assert.Equal(t, "r2", e.RunID)
		}
	}
	assert.True(t, found)

	require.NoError(t, s.Forget(ctx, "bs_test.0001"))
}
