package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Date layouts used by the stored and displayed publication dates.
const (
	LayoutISO     = "2006-01-02"
	LayoutDisplay = "02 January 2006"
)

// DateFormat rewrites a date sub-field between a stored layout and a display
// layout. When ListField is set the date lives in every item of that list;
// otherwise it sits directly on the block value.
//
// Days and months are parsed with or without zero padding and always written
// padded. Empty and absent dates are left alone. A date already in the target layout
// is left alone; a block whose dates are all in the target layout reports
// ErrAlreadyMigrated. A date in neither layout fails with ErrParse.
type DateFormat struct {
	Types         []string
	ListField     string
	DateField     string
	StoredLayout  string
	DisplayLayout string
}

// NewDateFormat returns a rule converting field between LayoutISO and
// LayoutDisplay. listField may be empty.
func NewDateFormat(blockTypes []string, listField, field string) *DateFormat {
	return &DateFormat{
		Types:         blockTypes,
		ListField:     listField,
		DateField:     field,
		StoredLayout:  LayoutISO,
		DisplayLayout: LayoutDisplay,
	}
}

var _ types.BlockRule = (*DateFormat)(nil)

func (r *DateFormat) Name() string {
	path := r.DateField
	if r.ListField != "" {
		path = r.ListField + "[]." + r.DateField
	}
	return fmt.Sprintf("date_format(%s:%s)", strings.Join(r.Types, ","), path)
}

func (r *DateFormat) BlockTypes() []string { return r.Types }

func (r *DateFormat) Reversibility() types.Reversibility { return types.Invertible }

func (r *DateFormat) Forwards(value any) (any, error) {
	return r.rewrite(value, r.StoredLayout, r.DisplayLayout)
}

func (r *DateFormat) Backwards(value any) (any, error) {
	return r.rewrite(value, r.DisplayLayout, r.StoredLayout)
}

func (r *DateFormat) rewrite(value any, from, to string) (any, error) {
	m, err := asMap(value, "value")
	if err != nil {
		return nil, err
	}

	var tally dateTally
	if r.ListField == "" {
		if err := tally.convert(m, r.DateField, from, to); err != nil {
			return nil, err
		}
	} else {
		raw, ok := m[r.ListField]
		if !ok || raw == nil {
			return m, nil
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, want list", types.ErrMalformedBlock, r.ListField, raw)
		}
		for i, item := range items {
			obj, err := asMap(item, fmt.Sprintf("%s[%d]", r.ListField, i))
			if err != nil {
				return nil, err
			}
			if err := tally.convert(obj, r.DateField, from, to); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", r.ListField, i, err)
			}
		}
	}

	if tally.converted == 0 && tally.already > 0 {
		return nil, types.ErrAlreadyMigrated
	}
	return m, nil
}

// unpadded drops the zero padding from day and month layout elements.
var unpadded = strings.NewReplacer("01", "1", "02", "2")

// lenient returns layout with unpadded day and month, which parses both
// "1 January 2000" and "01 January 2000". Output keeps the padded layout.
func lenient(layout string) string {
	return unpadded.Replace(layout)
}

type dateTally struct {
	converted int
	already   int
}

func (t *dateTally) convert(obj map[string]any, field, from, to string) error {
	s, err := stringOr(obj, field, "")
	if err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if d, err := time.Parse(lenient(from), s); err == nil {
		obj[field] = d.Format(to)
		t.converted++
		return nil
	}
	if _, err := time.Parse(lenient(to), s); err == nil {
		t.already++
		return nil
	}
	return fmt.Errorf("%w: %s %q matches neither %q nor %q", types.ErrParse, field, s, from, to)
}
