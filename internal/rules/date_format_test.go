package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

func TestDateFormatDirectField(t *testing.T) {
	rule := NewDateFormat([]string{"record"}, "", "date")

	fwd, err := rule.Forwards(decode(t, `{"date": "2000-01-01"}`))
	require.NoError(t, err)
	assert.Equal(t, "01 January 2000", fwd.(map[string]any)["date"])

	back, err := rule.Backwards(fwd)
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01", back.(map[string]any)["date"])
}

func TestDateFormatListField(t *testing.T) {
	rule := NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "every item converted",
			input: `{"heading": "h", "promoted_items": [{"title": "a", "publication_date": "2000-01-01"}, {"title": "b", "publication_date": "2021-12-31"}]}`,
			want:  `{"heading": "h", "promoted_items": [{"title": "a", "publication_date": "01 January 2000"}, {"title": "b", "publication_date": "31 December 2021"}]}`,
		},
		{
			name:  "empty date left alone",
			input: `{"promoted_items": [{"publication_date": ""}, {"title": "no date"}]}`,
			want:  `{"promoted_items": [{"publication_date": ""}, {"title": "no date"}]}`,
		},
		{
			name:  "missing list left alone",
			input: `{"heading": "h"}`,
			want:  `{"heading": "h"}`,
		},
		{
			name:  "mixed list converts the rest",
			input: `{"promoted_items": [{"publication_date": "01 January 2000"}, {"publication_date": "2001-02-03"}]}`,
			want:  `{"promoted_items": [{"publication_date": "01 January 2000"}, {"publication_date": "03 February 2001"}]}`,
		},
		{
			name:    "all already converted",
			input:   `{"promoted_items": [{"publication_date": "01 January 2000"}]}`,
			wantErr: types.ErrAlreadyMigrated,
		},
		{
			name:  "unpadded day and month",
			input: `{"promoted_items": [{"publication_date": "2000-1-2"}]}`,
			want:  `{"promoted_items": [{"publication_date": "02 January 2000"}]}`,
		},
		{
			name:    "unpadded display date already converted",
			input:   `{"promoted_items": [{"publication_date": "1 January 2000"}]}`,
			wantErr: types.ErrAlreadyMigrated,
		},
		{
			name:    "unparseable date",
			input:   `{"promoted_items": [{"publication_date": "sometime in 2000"}]}`,
			wantErr: types.ErrParse,
		},
		{
			name:    "item is not an object",
			input:   `{"promoted_items": ["2000-01-01"]}`,
			wantErr: types.ErrMalformedBlock,
		},
		{
			name:    "list is not a list",
			input:   `{"promoted_items": "2000-01-01"}`,
			wantErr: types.ErrMalformedBlock,
		},
		{
			name:    "date is not a string",
			input:   `{"promoted_items": [{"publication_date": 20000101}]}`,
			wantErr: types.ErrMalformedBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rule.Forwards(decode(t, tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, types.EqualValues(decode(t, tt.want), got), "got %v", got)
		})
	}
}

func TestDateFormatInverse(t *testing.T) {
	rule := NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date")

	for _, in := range []string{
		`{"promoted_items": [{"publication_date": "2000-01-01"}]}`,
		`{"promoted_items": [{"publication_date": "1999-07-04", "url": "/x"}, {"publication_date": "2024-02-29"}]}`,
		`{"heading": "only heading"}`,
	} {
		v := decode(t, in)
		fwd, err := rule.Forwards(types.CloneValue(v))
		require.NoError(t, err)
		back, err := rule.Backwards(types.CloneValue(fwd))
		require.NoError(t, err)
		assert.True(t, types.EqualValues(v, back), "input %s", in)
	}
}

func TestDateFormatBackwardsUnpaddedDay(t *testing.T) {
	rule := NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date")

	tests := []struct {
		input string
		want  string
	}{
		{input: "1 January 2000", want: "2000-01-01"},
		{input: "01 January 2000", want: "2000-01-01"},
		{input: "9 September 2021", want: "2021-09-09"},
		{input: "31 December 1999", want: "1999-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := map[string]any{"promoted_items": []any{map[string]any{"publication_date": tt.input}}}
			got, err := rule.Backwards(v)
			require.NoError(t, err)
			items := got.(map[string]any)["promoted_items"].([]any)
			assert.Equal(t, tt.want, items[0].(map[string]any)["publication_date"])
		})
	}
}

func TestDateFormatBackwardsTwiceIsNoop(t *testing.T) {
	rule := NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date")
	_, err := rule.Backwards(decode(t, `{"promoted_items": [{"publication_date": "2000-01-01"}]}`))
	assert.ErrorIs(t, err, types.ErrAlreadyMigrated)
}

func TestDateFormatName(t *testing.T) {
	rule := NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date")
	assert.Equal(t, "date_format(promoted_link:promoted_items[].publication_date)", rule.Name())
	assert.Equal(t, "date_format(a:d)", NewDateFormat([]string{"a"}, "", "d").Name())
}
