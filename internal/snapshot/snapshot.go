// Package snapshot records the values a migration run overwrites, so that a
// run can be undone even when its rules are lossy.
//
// A snapshot is a JSONL file with one Entry per overwritten field or
// revision. It is written to a temporary file and renamed into place when the
// run ends, so a snapshot on disk is always complete.
package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Entry kinds.
const (
	KindField    = "field"
	KindRevision = "revision"
)

// Entry is one captured value.
type Entry struct {
	RunID     string          `json:"run_id"`
	Migration string          `json:"migration"`
	Direction types.Direction `json:"direction"`
	Kind      string          `json:"kind"`
	Table     string          `json:"table,omitempty"`
	Key       string          `json:"key,omitempty"`
	// ID is the row key for fields and the revision id for revisions.
	ID       int64 `json:"id"`
	ObjectID int64 `json:"object_id,omitempty"`
	Field    string `json:"field,omitempty"`
	// Value is the stored column value, or the revision content as text.
	Value   any       `json:"value"`
	TakenAt time.Time `json:"taken_at"`
}

// Uploader copies a finished snapshot file elsewhere and returns where it
// went.
type Uploader interface {
	Upload(ctx context.Context, name, path string) (string, error)
}

// Option configures a Writer.
type Option func(*Writer)

// WithUploader uploads the snapshot once it is complete.
func WithUploader(u Uploader) Option {
	return func(w *Writer) { w.uploader = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// Writer streams entries of one run to a temporary file.
type Writer struct {
	runID     string
	migration string
	direction types.Direction

	dir      string
	name     string
	tmp      *os.File
	buf      *bufio.Writer
	entries  int
	uploader Uploader
	now      func() time.Time
}

// Create starts a snapshot for one run in dir.
func Create(dir, runID, migration string, d types.Direction, opts ...Option) (*Writer, error) {
	w := &Writer{
		runID:     runID,
		migration: migration,
		direction: d,
		dir:       dir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	w.tmp = tmp
	w.buf = bufio.NewWriter(tmp)
	w.name = FileName(w.now(), migration, d, runID)
	return w, nil
}

// FileName is the name a snapshot of the given run is stored under.
func FileName(at time.Time, migration string, d types.Direction, runID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return '_'
	}, migration)
	short := runID
	if len(short) > 8 {
		short = short[len(short)-8:]
	}
	return fmt.Sprintf("%s-%s-%s-%s.jsonl", at.UTC().Format("20060102T150405Z"), safe, d, short)
}

// CaptureField records the value a field had before it was overwritten.
func (w *Writer) CaptureField(table, key string, id int64, field string, value any) error {
	return w.write(Entry{
		Kind:  KindField,
		Table: table,
		Key:   key,
		ID:    id,
		Field: field,
		Value: value,
	})
}

// CaptureRevision records a revision's content before it is rewritten.
func (w *Writer) CaptureRevision(rev types.Revision) error {
	return w.write(Entry{
		Kind:     KindRevision,
		ID:       rev.ID,
		ObjectID: rev.ObjectID,
		Value:    string(rev.Content),
	})
}

func (w *Writer) write(e Entry) error {
	if w.tmp == nil {
		return fmt.Errorf("snapshot %s is closed", w.name)
	}
	e.RunID = w.runID
	e.Migration = w.migration
	e.Direction = w.direction
	e.TakenAt = w.now().UTC()

	line, err := types.EncodeValue(e)
	if err != nil {
		return fmt.Errorf("encoding snapshot entry: %w", err)
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}
	w.entries++
	return nil
}

// Close flushes, syncs and renames the snapshot into place, then uploads it
// if an uploader is set. A snapshot with no entries is discarded and Close
// returns an empty location.
func (w *Writer) Close(ctx context.Context) (string, error) {
	if w.tmp == nil {
		return "", nil
	}
	tmp := w.tmp
	tmpName := tmp.Name()
	w.tmp = nil

	if w.entries == 0 {
		tmp.Close()
		os.Remove(tmpName)
		return "", nil
	}
	if err := w.buf.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	path := filepath.Join(w.dir, w.name)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}

	if w.uploader == nil {
		return path, nil
	}
	loc, err := w.uploader.Upload(ctx, w.name, path)
	if err != nil {
		return path, fmt.Errorf("uploading %s: %w", w.name, err)
	}
	return loc, nil
}

// Entries returns the number of entries written so far.
func (w *Writer) Entries() int {
	return w.entries
}
