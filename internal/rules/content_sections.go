package rules

import (
	"github.com/google/uuid"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Block types read and written by ContentSections.
const (
	TypeSection              = "section"
	TypeParagraphWithHeading = "paragraph_with_heading"
	TypeParagraph            = "paragraph"
	TypeSubHeading           = "sub_heading"
	TypeContentSection       = "content_section"
	TypeContentSubSection    = "content_sub_section"
)

// ContentSections regroups a flat body into content_section and
// content_sub_section blocks:
//
//   - a section block or an h2 paragraph_with_heading starts a new section;
//   - an h3 paragraph_with_heading starts a new sub-section;
//   - an h4 paragraph_with_heading adds a sub_heading block at the current level;
//   - every paragraph_with_heading contributes a paragraph block {text};
//   - any other block is appended at the current level as is.
//
// Content before the first heading lands in a section with a null heading.
// The layouts this produces cannot all be expressed with the old blocks, so
// the rule is lossy.
type ContentSections struct {
	// NewID returns ids for created blocks. Defaults to random UUIDs.
	NewID func() string
}

// NewContentSections returns the rule with random block ids.
func NewContentSections() *ContentSections {
	return &ContentSections{NewID: uuid.NewString}
}

var _ types.TreeRule = (*ContentSections)(nil)

func (r *ContentSections) Name() string { return "content_sections" }

func (r *ContentSections) Reversibility() types.Reversibility { return types.Lossy }

func (r *ContentSections) Forwards(tree types.ContentTree) (types.ContentTree, error) {
	if len(tree) == 0 {
		return tree, nil
	}
	if grouped(tree) {
		return nil, types.ErrAlreadyMigrated
	}

	g := sectionGrouper{newID: r.NewID}
	if g.newID == nil {
		g.newID = uuid.NewString
	}

	for _, block := range tree {
		if block.Malformed() {
			g.add(blockValue(block))
			continue
		}

		switch block.Type {
		case TypeSection:
			heading, ok := headingOf(block.Value)
			if !ok {
				g.add(blockValue(block))
				continue
			}
			g.openSection(heading)

		case TypeParagraphWithHeading:
			v, ok := block.Value.(map[string]any)
			if !ok {
				g.add(blockValue(block))
				continue
			}
			heading, _ := v["heading"].(string)
			switch v["heading_level"] {
			case "h2":
				g.openSection(heading)
			case "h3":
				g.openSubSection(heading)
			case "h4":
				g.add(g.block(TypeSubHeading, map[string]any{"heading": heading}))
			}
			g.add(g.block(TypeParagraph, map[string]any{"text": v["paragraph"]}))

		default:
			g.add(blockValue(block))
		}
	}
	g.closeSection()

	return g.out, nil
}

// Backwards is never reached through a Transformer because the rule is
// lossy; it returns the tree unchanged.
func (r *ContentSections) Backwards(tree types.ContentTree) (types.ContentTree, error) {
	return tree, nil
}

// grouped reports whether every top-level block is already a section.
func grouped(tree types.ContentTree) bool {
	for _, b := range tree {
		if b.Malformed() || b.Type != TypeContentSection {
			return false
		}
	}
	return true
}

func headingOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		h, ok := t["heading"].(string)
		return h, ok
	}
	return "", false
}

type sectionGrouper struct {
	newID func() string
	out   types.ContentTree

	sectionHeading *string
	sectionContent []any

	inSub      bool
	subHeading string
	subContent []any
}

func (g *sectionGrouper) block(typ string, value map[string]any) map[string]any {
	return map[string]any{"type": typ, "value": value, "id": g.newID()}
}

func (g *sectionGrouper) add(v any) {
	if g.inSub {
		g.subContent = append(g.subContent, v)
		return
	}
	g.sectionContent = append(g.sectionContent, v)
}

func (g *sectionGrouper) openSection(heading string) {
	g.closeSection()
	g.sectionHeading = &heading
}

func (g *sectionGrouper) openSubSection(heading string) {
	g.closeSubSection()
	g.inSub = true
	g.subHeading = heading
}

func (g *sectionGrouper) closeSubSection() {
	if g.inSub && (len(g.subContent) > 0 || g.subHeading != "") {
		g.sectionContent = append(g.sectionContent, g.block(TypeContentSubSection, map[string]any{
			"heading": g.subHeading,
			"content": nonNil(g.subContent),
		}))
	}
	g.inSub = false
	g.subHeading = ""
	g.subContent = nil
}

func (g *sectionGrouper) closeSection() {
	g.closeSubSection()
	if len(g.sectionContent) > 0 || g.sectionHeading != nil {
		var heading any
		if g.sectionHeading != nil {
			heading = *g.sectionHeading
		}
		g.out = append(g.out, types.Block{
			Type: TypeContentSection,
			ID:   g.newID(),
			Value: map[string]any{
				"heading": heading,
				"content": nonNil(g.sectionContent),
			},
		})
	}
	g.sectionHeading = nil
	g.sectionContent = nil
}

func nonNil(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}
