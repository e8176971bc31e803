package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// DefaultAltTextLength is the longest alt text AltTextFromImage writes.
const DefaultAltTextLength = 100

// AltTextFromImage copies the title of a row's referenced image into its alt
// text column, truncated to MaxLength runes. Rows without an image, or whose
// image no longer exists, are left alone. The previous alt text is
// overwritten, so the rule is lossy.
type AltTextFromImage struct {
	ImageField string
	AltField   string
	ImageTable string
	ImageKey   string
	TitleField string
	MaxLength  int
}

// NewAltTextFromImage returns the rule reading titles from Wagtail's image
// table.
func NewAltTextFromImage(imageField, altField string) *AltTextFromImage {
	return &AltTextFromImage{
		ImageField: imageField,
		AltField:   altField,
		ImageTable: "wagtailimages_image",
		ImageKey:   "id",
		TitleField: "title",
		MaxLength:  DefaultAltTextLength,
	}
}

var _ types.RecordRule = (*AltTextFromImage)(nil)

func (r *AltTextFromImage) Name() string {
	return fmt.Sprintf("alt_text_from_image(%s->%s)", r.ImageField, r.AltField)
}

func (r *AltTextFromImage) Fields() []string { return []string{r.ImageField, r.AltField} }

func (r *AltTextFromImage) Reversibility() types.Reversibility { return types.Lossy }

func (r *AltTextFromImage) Forwards(ctx context.Context, rec types.Record, lookup types.Lookup) (map[string]any, error) {
	imageID, ok := rec.Int(r.ImageField)
	if !ok {
		return nil, nil
	}
	row, err := lookup.Get(ctx, r.ImageTable, r.ImageKey, imageID, []string{r.TitleField})
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load image %d: %w", imageID, err)
	}

	title, _ := types.Record{Fields: row.Fields}.String(r.TitleField)
	alt := truncateRunes(title, r.MaxLength)
	if current, _ := rec.String(r.AltField); current == alt {
		return nil, types.ErrAlreadyMigrated
	}
	return map[string]any{r.AltField: alt}, nil
}

func (r *AltTextFromImage) Backwards(context.Context, types.Record, types.Lookup) (map[string]any, error) {
	return nil, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// FieldDefaults sets fixed column values when run in Direction and does
// nothing in the other direction. It pairs with schema changes that add or
// drop the columns: populating them on the way back keeps the older schema's
// NOT NULL constraints satisfied.
type FieldDefaults struct {
	Direction types.Direction
	Values    map[string]any
}

var _ types.RecordRule = (*FieldDefaults)(nil)

func (r *FieldDefaults) Name() string {
	return fmt.Sprintf("field_defaults(%s:%s)", r.Direction, strings.Join(r.Fields(), ","))
}

func (r *FieldDefaults) Fields() []string {
	fields := make([]string, 0, len(r.Values))
	for k := range r.Values {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (r *FieldDefaults) Reversibility() types.Reversibility { return types.Invertible }

func (r *FieldDefaults) Forwards(_ context.Context, rec types.Record, _ types.Lookup) (map[string]any, error) {
	if r.Direction != types.Forwards {
		return nil, nil
	}
	return r.apply(rec)
}

func (r *FieldDefaults) Backwards(_ context.Context, rec types.Record, _ types.Lookup) (map[string]any, error) {
	if r.Direction != types.Backwards {
		return nil, nil
	}
	return r.apply(rec)
}

func (r *FieldDefaults) apply(rec types.Record) (map[string]any, error) {
	out := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		if current, ok := rec.Fields[k]; ok && types.EqualValues(current, v) {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, types.ErrAlreadyMigrated
	}
	return out, nil
}
