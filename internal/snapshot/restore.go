package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/blockshift/internal/logging"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Summary describes a restored snapshot.
type Summary struct {
	RunID     string          `json:"run_id"`
	Migration string          `json:"migration"`
	Direction types.Direction `json:"direction"`
	Rows      int             `json:"rows"`
	Fields    int             `json:"fields"`
	Revisions int             `json:"revisions"`
}

// Read decodes the entries of a snapshot. Numbers are kept as json.Number.
func Read(r io.Reader) ([]Entry, error) {
	var out []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RestoreFile restores the snapshot at path.
func RestoreFile(ctx context.Context, store types.Store, path string, log *zap.Logger) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Restore(ctx, store, f, log)
}

// Restore writes every captured value back, one Save per row, and then
// updates the ledger to match: restoring a forwards run forgets the
// migration, restoring a backwards run records it again.
func Restore(ctx context.Context, store types.Store, r io.Reader, log *zap.Logger) (Summary, error) {
	log = logging.OrNop(log)
	entries, err := Read(r)
	if err != nil {
		return Summary{}, err
	}
	if len(entries) == 0 {
		return Summary{}, fmt.Errorf("snapshot is empty")
	}

	sum := Summary{
		RunID:     entries[0].RunID,
		Migration: entries[0].Migration,
		Direction: entries[0].Direction,
	}

	type rowKey struct {
		table, key string
		id         int64
	}
	var (
		order []rowKey
		rows  = make(map[rowKey]map[string]any)
	)
	for i, e := range entries {
		if e.RunID != sum.RunID || e.Migration != sum.Migration {
			return Summary{}, fmt.Errorf("entry %d belongs to run %s of %s, not %s of %s",
				i+1, e.RunID, e.Migration, sum.RunID, sum.Migration)
		}
		switch e.Kind {
		case KindField:
			k := rowKey{e.Table, e.Key, e.ID}
			if _, ok := rows[k]; !ok {
				order = append(order, k)
				rows[k] = make(map[string]any)
			}
			rows[k][e.Field] = e.Value
			sum.Fields++
		case KindRevision:
			content, ok := e.Value.(string)
			if !ok {
				return Summary{}, fmt.Errorf("entry %d: revision content is %T", i+1, e.Value)
			}
			if err := store.SaveRevision(ctx, types.Revision{ID: e.ID, ObjectID: e.ObjectID, Content: []byte(content)}); err != nil {
				return sum, fmt.Errorf("restoring revision %d: %w", e.ID, err)
			}
			sum.Revisions++
		default:
			return Summary{}, fmt.Errorf("entry %d: unknown kind %q", i+1, e.Kind)
		}
	}

	for _, k := range order {
		if err := store.Save(ctx, k.table, k.key, k.id, rows[k]); err != nil {
			return sum, fmt.Errorf("restoring %s %d: %w", k.table, k.id, err)
		}
		sum.Rows++
	}

	if sum.Direction == types.Forwards {
		err = store.Forget(ctx, sum.Migration)
	} else {
		err = store.Record(ctx, types.LedgerEntry{Name: sum.Migration, RunID: sum.RunID, AppliedAt: time.Now().UTC()})
	}
	if err != nil {
		return sum, fmt.Errorf("updating ledger: %w", err)
	}

	log.Info("snapshot restored",
		zap.String("migration", sum.Migration),
		zap.String("run_id", sum.RunID),
		zap.Stringer("direction", sum.Direction),
		zap.Int("rows", sum.Rows),
		zap.Int("revisions", sum.Revisions),
	)
	return sum, nil
}
