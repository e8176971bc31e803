package transform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mesh-intelligence/blockshift/internal/rules"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

func parse(t *testing.T, s string) types.ContentTree {
	t.Helper()
	tree, err := types.ParseTree([]byte(s))
	require.NoError(t, err)
	return tree
}

const mixedTree = `[
	{"type":"paragraph","value":{"text":"<p>intro</p>"},"id":"p1"},
	{"type":"promoted_item","value":{"teaser_image":7,"teaser_alt_text":"x"},"id":"i1"},
	{"type":"featured_record","value":{"teaser_image":8},"id":"i2"},
	"garbage",
	{"type":"promoted_link","value":{"promoted_items":[{"publication_date":"2000-01-01"}]},"id":"l1"}
]`

func newImageDate(t *testing.T, opts ...Option) *Transformer {
	t.Helper()
	tr, err := New([]types.BlockRule{
		rules.NewImageStruct("promoted_item", "featured_record"),
		rules.NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date"),
	}, opts...)
	require.NoError(t, err)
	return tr
}

func TestApplyForwards(t *testing.T) {
	tr := newImageDate(t)
	in := parse(t, mixedTree)

	res, err := tr.Apply(in, types.Forwards)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Changed)
	assert.True(t, res.Modified())
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Tree, 5)

	img := res.Tree[1].Value.(map[string]any)["image"].(map[string]any)
	assert.Equal(t, "x", img["alt_text"])
	assert.Equal(t, true, img["decorative"])

	item := res.Tree[4].Value.(map[string]any)["promoted_items"].([]any)[0].(map[string]any)
	assert.Equal(t, "01 January 2000", item["publication_date"])

	assert.Equal(t, "i1", res.Tree[1].ID)
	assert.True(t, res.Tree[3].Malformed())
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	tr := newImageDate(t)
	in := parse(t, mixedTree)
	before := in.Clone()

	_, err := tr.Apply(in, types.Forwards)
	require.NoError(t, err)
	assert.True(t, before.Equal(in))
}

func TestApplyRoundTrip(t *testing.T) {
	tr := newImageDate(t)
	in := parse(t, mixedTree)

	fwd, err := tr.Apply(in, types.Forwards)
	require.NoError(t, err)
	back, err := tr.Apply(fwd.Tree, types.Backwards)
	require.NoError(t, err)

	assert.True(t, parse(t, mixedTree).Equal(back.Tree))

	out, err := back.Tree.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"<p>intro</p>"`)
}

func TestApplyForwardsTwiceIsNoop(t *testing.T) {
	tr := newImageDate(t)
	first, err := tr.Apply(parse(t, mixedTree), types.Forwards)
	require.NoError(t, err)

	second, err := tr.Apply(first.Tree, types.Forwards)
	require.NoError(t, err)
	assert.Zero(t, second.Changed)
	assert.Equal(t, 3, second.AlreadyMigrated)
	assert.True(t, first.Tree.Equal(second.Tree))
}

func TestApplyLeavesNonTargetBlocksAlone(t *testing.T) {
	tr := newImageDate(t)
	in := parse(t, mixedTree)

	for _, dir := range []types.Direction{types.Forwards, types.Backwards} {
		res, err := tr.Apply(in, dir)
		require.NoError(t, err)
		for i, b := range in {
			if b.Malformed() || !tr.Targets(b.Type) {
				assert.True(t, types.ContentTree{b}.Equal(types.ContentTree{res.Tree[i]}), "%s block %d", dir, i)
			}
		}
	}
}

func TestApplySkipsMalformedBlocks(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := newImageDate(t, WithLogger(zap.New(core)))

	in := parse(t, `[
		{"type":"promoted_item","value":"not a struct","id":"bad"},
		{"type":"promoted_item","value":{"teaser_image":1,"teaser_alt_text":"ok"},"id":"good"}
	]`)
	res, err := tr.Apply(in, types.Forwards)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Changed)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "bad", res.Skipped[0].BlockID)
	assert.Equal(t, 0, res.Skipped[0].Index)
	assert.Equal(t, "not a struct", res.Tree[0].Value)

	entries := logs.FilterMessage("skipping block").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad", entries[0].ContextMap()["block_id"])
}

func TestApplyParsePolicy(t *testing.T) {
	in := parse(t, `[
		{"type":"promoted_link","value":{"promoted_items":[{"publication_date":"yesterday"}]},"id":"l1"},
		{"type":"promoted_link","value":{"promoted_items":[{"publication_date":"2000-01-01"}]},"id":"l2"}
	]`)

	t.Run("fail stops", func(t *testing.T) {
		tr := newImageDate(t)
		_, err := tr.Apply(in, types.Forwards)
		assert.ErrorIs(t, err, types.ErrParse)
	})

	t.Run("skip continues", func(t *testing.T) {
		tr := newImageDate(t, WithParsePolicy(ParseSkip))
		res, err := tr.Apply(in, types.Forwards)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Changed)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, "l1", res.Skipped[0].BlockID)
	})
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }
func (failingRule) BlockTypes() []string { return []string{"boom"} }
func (failingRule) Reversibility() types.Reversibility { return types.Invertible }
func (failingRule) Forwards(any) (any, error) { return nil, errors.New("kaput") }
func (failingRule) Backwards(v any) (any, error) { return v, nil }

func TestApplyUnexpectedErrorIsFatal(t *testing.T) {
	tr, err := New([]types.BlockRule{failingRule{}})
	require.NoError(t, err)

	_, err = tr.Apply(parse(t, `[{"type":"boom","value":1}]`), types.Forwards)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")
}

func TestNewRejectsDuplicateClaims(t *testing.T) {
	_, err := New([]types.BlockRule{
		rules.NewImageStruct("promoted_item"),
		rules.NewImageStruct("featured_record", "promoted_item"),
	})
	assert.ErrorIs(t, err, types.ErrDuplicateRule)
}

func TestApplyTreeRules(t *testing.T) {
	n := 0
	sections := &rules.ContentSections{NewID: func() string { n++; return fmt.Sprintf("s%d", n) }}
	tr, err := New(nil, WithTreeRules(sections))
	require.NoError(t, err)
	assert.False(t, tr.Empty())

	in := parse(t, `[{"type":"section","value":{"heading":"A"}},{"type":"quote","value":"q"}]`)
	res, err := tr.Apply(in, types.Forwards)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	require.Len(t, res.Tree, 1)
	assert.Equal(t, rules.TypeContentSection, res.Tree[0].Type)

	again, err := tr.Apply(res.Tree, types.Forwards)
	require.NoError(t, err)
	assert.Equal(t, 1, again.AlreadyMigrated)
	assert.Zero(t, again.Changed)

	back, err := tr.Apply(res.Tree, types.Backwards)
	require.NoError(t, err)
	assert.True(t, back.Lossy)
	assert.True(t, res.Tree.Equal(back.Tree))
}

func TestParseParsePolicy(t *testing.T) {
	p, err := ParseParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ParseFail, p)

	p, err = ParseParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, ParseSkip, p)

	_, err = ParseParsePolicy("ignore")
	assert.Error(t, err)
}
