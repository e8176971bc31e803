package sqlite

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

//go:embed fixtures/*.jsonl
var fixtures embed.FS

// fixtureTables maps fixture files to their tables and columns. Tables with
// foreign keys load after the tables they reference.
var fixtureTables = []struct {
	table   string
	columns []string
}{
	{"wagtailimages_image", []string{"id", "title"}},
	{"wagtailcore_revision", []string{"id", "object_id", "content", "created_at"}},
	{"articles_insightspage", []string{"page_ptr_id", "body", "hero_image_id", "hero_image_alt_text"}},
	{"articles_recordarticlepage", []string{"page_ptr_id", "promoted_links"}},
	{"ukgwa_ukgwahomepage", []string{"page_ptr_id", "featured_links_heading", "featured_links"}},
}

// SeedDemo creates the demo Wagtail tables and fills them with the bundled
// fixture pages. Rows that already exist are left as they are, so seeding
// twice is harmless. Loading is transactional.
func (s *Store) SeedDemo(ctx context.Context) error {
	db := s.DB()
	if db == nil {
		return types.ErrStoreClosed
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ddl := range demoDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating demo schema: %w", err)
		}
	}

	for _, ft := range fixtureTables {
		data, err := fixtures.ReadFile("fixtures/" + ft.table + ".jsonl")
		if err != nil {
			return fmt.Errorf("reading fixture %s: %w", ft.table, err)
		}
		records, err := readFixture(data)
		if err != nil {
			return fmt.Errorf("reading fixture %s: %w", ft.table, err)
		}
		if err := insertRecords(ctx, tx, ft.table, ft.columns, records); err != nil {
			return fmt.Errorf("loading %s: %w", ft.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}
	return nil
}

// readFixture decodes one JSON object per non-empty line.
func readFixture(data []byte) ([]map[string]any, error) {
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		v, err := types.DecodeValue(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("line %d: not an object", n)
		}
		out = append(out, obj)
	}
	return out, scanner.Err()
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// insertRecords inserts fixture records. Columns missing from a record are
// written as NULL; keys not listed in columns are ignored.
func insertRecords(ctx context.Context, tx *sql.Tx, table string, columns []string, records []map[string]any) error {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
		placeholders[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]any, len(columns))
		for i, col := range columns {
			if args[i], err = types.ColumnValue(rec[col]); err != nil {
				return fmt.Errorf("encoding %s: %w", col, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}
