package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name     string
		numbered bool
		query    string
		want     string
	}{
		{"question marks kept", false, "SELECT a FROM t WHERE k > ? LIMIT ?", "SELECT a FROM t WHERE k > ? LIMIT ?"},
		{"numbered", true, "SELECT a FROM t WHERE k > ? LIMIT ?", "SELECT a FROM t WHERE k > $1 LIMIT $2"},
		{"no placeholders", true, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Store{dialect: Dialect{Numbered: tt.numbered}}
			assert.Equal(t, tt.want, s.bind(tt.query))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Equal(t, int64(3), normalize(int64(3)))
	assert.Nil(t, normalize(nil))
	assert.JSONEq(t, `{"a":[1]}`, normalize(map[string]any{"a": []any{1}}).(string))
}

func TestSelectListRejectsBadNames(t *testing.T) {
	_, err := selectList("pages", "id", []string{"body", "x\"y"})
	assert.Error(t, err)

	cols, err := selectList("pages", "id", []string{"body"})
	assert.NoError(t, err)
	assert.Equal(t, `"id", "body"`, cols)
}
