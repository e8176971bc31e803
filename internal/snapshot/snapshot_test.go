package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blockshift/internal/memstore"
	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/internal/rules"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

func TestFileName(t *testing.T) {
	name := FileName(fixedNow(), "articles.0028 image/x", types.Backwards, "0190a1b2-0000-7000-8000-00000000abcd")
	assert.Equal(t, "20240301T100000Z-articles.0028_image_x-backwards-0000abcd.jsonl", name)
}

func TestWriterIsAtomic(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, "run-1", "m.0001", types.Forwards, WithClock(fixedNow))
	require.NoError(t, err)
	require.NoError(t, w.CaptureField("pages", "id", 1, "body", `[]`))
	require.NoError(t, w.CaptureRevision(types.Revision{ID: 5, ObjectID: 1, Content: []byte(`{"body":"[]"}`)}))
	assert.Equal(t, 2, w.Entries())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), ".snapshot-"))

	path, err := w.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName(fixedNow(), "m.0001", types.Forwards, "run-1")), path)

	files, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := Read(f)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindField, entries[0].Kind)
	assert.Equal(t, "[]", entries[0].Value)
	assert.Equal(t, KindRevision, entries[1].Kind)
	assert.Equal(t, int64(1), entries[1].ObjectID)
}

func TestEmptySnapshotIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, "run-1", "m.0001", types.Forwards)
	require.NoError(t, err)
	path, err := w.Close(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

type stubUploader struct{ err error }

func (u stubUploader) Upload(_ context.Context, name, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return Location("snaps", name), nil
}

func TestWriterUploads(t *testing.T) {
	w, err := Create(t.TempDir(), "run-1", "m.0001", types.Forwards, WithClock(fixedNow), WithUploader(stubUploader{}))
	require.NoError(t, err)
	require.NoError(t, w.CaptureField("pages", "id", 1, "body", nil))
	loc, err := w.Close(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "s3://snaps/20240301T100000Z-m.0001"))

	w, err = Create(t.TempDir(), "run-2", "m.0001", types.Forwards, WithUploader(stubUploader{err: errors.New("offline")}))
	require.NoError(t, err)
	require.NoError(t, w.CaptureField("pages", "id", 1, "body", nil))
	loc, err = w.Close(context.Background())
	assert.Error(t, err)
	assert.FileExists(t, loc)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in             string
		bucket, object string
		ok             bool
	}{
		{"s3://snaps/a/b.jsonl", "snaps", "a/b.jsonl", true},
		{"s3://snaps/", "", "", false},
		{"s3:///x", "", "", false},
		{"/tmp/x.jsonl", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b, o, ok := ParseLocation(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, b)
			assert.Equal(t, tt.object, o)
		})
	}
}

func TestRestoreUndoesLossyMigration(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	original := `[{"type":"section","value":{"heading":"A"},"id":"s"},{"type":"quote","value":"q","id":"q"}]`
	s.Put("pages", 1, map[string]any{"body": original})
	s.PutRevision(types.Revision{ID: 9, ObjectID: 1, Content: []byte(`{"body":` + jsonString(original) + `}`)})

	reg := migration.NewRegistry()
	require.NoError(t, reg.Register(migration.Migration{
		Name:         "articles.0036_sections",
		Table:        "pages",
		Key:          "page_ptr_id",
		StreamFields: []string{"body"},
		TreeRules:    []types.TreeRule{rules.NewContentSections()},
		SyncRevision: true,
	}))
	dir := t.TempDir()
	r := migration.NewRunner(s, reg, migration.WithSnapshots(func(runID, name string, d types.Direction) (migration.SnapshotWriter, error) {
		return Create(dir, runID, name, d)
	}))

	reports, err := r.Migrate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, reports[0].Snapshot)
	row, _ := s.Row("pages", 1)
	require.NotEqual(t, original, row["body"])

	sum, err := RestoreFile(ctx, s, reports[0].Snapshot, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Rows)
	assert.Equal(t, 1, sum.Revisions)
	assert.Equal(t, types.Forwards, sum.Direction)

	row, _ = s.Row("pages", 1)
	assert.Equal(t, original, row["body"])
	rev, err := s.LatestRevision(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, string(rev.Content), `\"section\"`)

	applied, err := s.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRestoreRejectsMixedRuns(t *testing.T) {
	in := `{"run_id":"a","migration":"m","direction":"forwards","kind":"field","table":"pages","key":"id","id":1,"field":"body","value":"[]"}
{"run_id":"b","migration":"m","direction":"forwards","kind":"field","table":"pages","key":"id","id":2,"field":"body","value":"[]"}
`
	_, err := Restore(context.Background(), memstore.New(), strings.NewReader(in), nil)
	assert.Error(t, err)

	_, err = Restore(context.Background(), memstore.New(), strings.NewReader(""), nil)
	assert.Error(t, err)
}

func jsonString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
