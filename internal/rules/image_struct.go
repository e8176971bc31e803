package rules

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// ImageStruct moves a flat image reference and its alt text into an
// accessible image struct:
//
//	{"teaser_image": 7, "teaser_alt_text": "x"}
//	-> {"teaser_image": 7, "teaser_alt_text": "x",
//	    "image": {"image": 7, "decorative": true, "alt_text": "x", "caption": ""}}
//
// The source fields are kept. A missing alt text defaults to "" and a missing
// image to null inside the struct; going backwards, those defaults leave an
// absent or null source field as it was.
type ImageStruct struct {
	Types      []string
	ImageField string
	AltField   string
	Target     string
}

// NewImageStruct returns the rule for the given block types with the
// teaser_image / teaser_alt_text / image field names.
func NewImageStruct(blockTypes ...string) *ImageStruct {
	return &ImageStruct{
		Types:      blockTypes,
		ImageField: "teaser_image",
		AltField:   "teaser_alt_text",
		Target:     "image",
	}
}

var _ types.BlockRule = (*ImageStruct)(nil)

func (r *ImageStruct) Name() string {
	return fmt.Sprintf("image_struct(%s)", strings.Join(r.Types, ","))
}

func (r *ImageStruct) BlockTypes() []string { return r.Types }

func (r *ImageStruct) Reversibility() types.Reversibility { return types.Invertible }

func (r *ImageStruct) Forwards(value any) (any, error) {
	m, err := asMap(value, "value")
	if err != nil {
		return nil, err
	}
	if existing, ok := m[r.Target]; ok && existing != nil {
		if _, isMap := existing.(map[string]any); isMap {
			return nil, types.ErrAlreadyMigrated
		}
		return nil, fmt.Errorf("%w: %s is %T, want object", types.ErrMalformedBlock, r.Target, existing)
	}

	alt, err := stringOr(m, r.AltField, "")
	if err != nil {
		return nil, err
	}
	m[r.Target] = map[string]any{
		"image":      m[r.ImageField],
		"decorative": true,
		"alt_text":   alt,
		"caption":    "",
	}
	return m, nil
}

func (r *ImageStruct) Backwards(value any) (any, error) {
	m, err := asMap(value, "value")
	if err != nil {
		return nil, err
	}
	existing, ok := m[r.Target]
	if !ok || existing == nil {
		return nil, types.ErrAlreadyMigrated
	}
	img, err := asMap(existing, r.Target)
	if err != nil {
		return nil, err
	}
	alt, err := stringOr(img, "alt_text", "")
	if err != nil {
		return nil, err
	}

	delete(m, r.Target)
	restoreField(m, r.ImageField, img["image"], nil)
	restoreField(m, r.AltField, alt, "")
	return m, nil
}

// restoreField writes v to m[field], except that a default value does not
// replace an absent or null field.
func restoreField(m map[string]any, field string, v, def any) {
	if cur, ok := m[field]; (!ok || cur == nil) && v == def {
		return
	}
	m[field] = v
}
