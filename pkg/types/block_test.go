package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTree(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLen   int
		wantErr   error
		malformed []int
	}{
		{name: "empty input", input: "", wantLen: 0},
		{name: "null", input: "null", wantLen: 0},
		{name: "empty array", input: "[]", wantLen: 0},
		{
			name:    "two blocks",
			input:   `[{"type":"paragraph","value":{"text":"a"},"id":"x"},{"type":"quote","value":"b"}]`,
			wantLen: 2,
		},
		{
			name:    "string wrapped stream",
			input:   `"[{\"type\":\"paragraph\",\"value\":\"a\"}]"`,
			wantLen: 1,
		},
		{
			name:      "non-object element kept as malformed",
			input:     `[42, {"type":"paragraph","value":"a"}]`,
			wantLen:   2,
			malformed: []int{0},
		},
		{
			name:      "missing type kept as malformed",
			input:     `[{"value":"a"}, {"type": 3, "value": "b"}]`,
			wantLen:   2,
			malformed: []int{0, 1},
		},
		{name: "object is not a tree", input: `{"type":"paragraph"}`, wantErr: ErrInvalidTree},
		{name: "broken json", input: `[{"type":`, wantErr: ErrInvalidTree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseTree([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, tree, tt.wantLen)
			for i, b := range tree {
				want := false
				for _, m := range tt.malformed {
					if m == i {
						want = true
					}
				}
				assert.Equal(t, want, b.Malformed(), "block %d", i)
			}
		})
	}
}

func TestContentTreeRoundTrip(t *testing.T) {
	input := `[
		{"type":"promoted_item","value":{"teaser_image":7,"ratio":1.50,"teaser_alt_text":"x"},"id":"a1"},
		{"type":"paragraph","value":{"text":"<p>hi</p>"},"id":"a2","locale":"en"},
		"stray",
		{"type":"list","value":[1,2,{"nested":[true,null]}]}
	]`

	tree, err := ParseTree([]byte(input))
	require.NoError(t, err)

	out, err := tree.Marshal()
	require.NoError(t, err)

	again, err := ParseTree(out)
	require.NoError(t, err)

	assert.True(t, tree.Equal(again))
	assert.True(t, EqualJSON([]byte(input), out))
	assert.Equal(t, "en", again[1].Extra["locale"])
	assert.Equal(t, json.RawMessage(`"stray"`), again[2].Raw())
}

func TestNumbersSurviveRoundTrip(t *testing.T) {
	tree, err := ParseTree([]byte(`[{"type":"n","value":{"big":12345678901234567890,"f":1.50}}]`))
	require.NoError(t, err)

	out, err := tree.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "12345678901234567890")
	assert.Contains(t, string(out), "1.50")
}

func TestContentTreeClone(t *testing.T) {
	tree, err := ParseTree([]byte(`[{"type":"a","value":{"items":[{"k":"v"}]},"extra":{"x":1}}]`))
	require.NoError(t, err)

	cp := tree.Clone()
	cp[0].Value.(map[string]any)["items"].([]any)[0].(map[string]any)["k"] = "changed"
	cp[0].Extra["extra"].(map[string]any)["x"] = 2

	item := tree[0].Value.(map[string]any)["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "v", item["k"])
	assert.Equal(t, json.Number("1"), tree[0].Extra["extra"].(map[string]any)["x"])
	assert.False(t, tree.Equal(cp))
}

func TestNilTreeMarshalsAsEmptyArray(t *testing.T) {
	var tree ContentTree
	out, err := tree.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestTreeFromValue(t *testing.T) {
	v, err := DecodeValue([]byte(`{"body":[{"type":"p","value":"x"}],"legacy":"[{\"type\":\"q\",\"value\":1}]"}`))
	require.NoError(t, err)
	obj := v.(map[string]any)

	body, err := TreeFromValue(obj["body"])
	require.NoError(t, err)
	require.Len(t, body, 1)
	assert.Equal(t, "p", body[0].Type)

	legacy, err := TreeFromValue(obj["legacy"])
	require.NoError(t, err)
	require.Len(t, legacy, 1)
	assert.Equal(t, "q", legacy[0].Type)
}

func TestDecodeValueRejectsTrailingData(t *testing.T) {
	_, err := DecodeValue([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestMarshalKeepsMarkup(t *testing.T) {
	tree, err := ParseTree([]byte(`[{"type":"paragraph","value":{"text":"<p>a & b</p>"},"id":"p1"},"<raw>"]`))
	require.NoError(t, err)

	out, err := tree.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"<p>a & b</p>"`)
	assert.Contains(t, string(out), `"<raw>"`)
	assert.NotContains(t, string(out), `\u003c`)
	assert.NotContains(t, string(out), `\u0026`)

	col, err := ColumnValue(tree)
	require.NoError(t, err)
	assert.Equal(t, string(out), col)

	col, err = ColumnValue(map[string]any{"html": "<b>x</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>x</b>"}`, col)
}
