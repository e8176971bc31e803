package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blockshift/internal/rules"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

func TestRegistryOrdersByName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(dateMigration(), imageMigration()))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "articles.0028_image", all[0].Name)
	assert.Equal(t, "articles.0090_dates", all[1].Name)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryRejects(t *testing.T) {
	tests := []struct {
		name    string
		m       func() Migration
		wantErr error
	}{
		{
			name:    "duplicate name",
			m:       imageMigration,
			wantErr: types.ErrDuplicateName,
		},
		{
			name: "duplicate block type claim",
			m: func() Migration {
				m := imageMigration()
				m.Name = "articles.0030_twice"
				m.BlockRules = append(m.BlockRules, rules.NewImageStruct("promoted_item"))
				return m
			},
			wantErr: types.ErrDuplicateRule,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			require.NoError(t, reg.Register(imageMigration()))
			assert.ErrorIs(t, reg.Register(tt.m()), tt.wantErr)
		})
	}
}

func TestMigrationValidate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*Migration)
		wantErr string
	}{
		{"valid", func(*Migration) {}, ""},
		{"missing name", func(m *Migration) { m.Name = "" }, "name"},
		{"bad table", func(m *Migration) { m.Table = "pages; --" }, "plain SQL identifier"},
		{"no stream fields", func(m *Migration) { m.StreamFields = nil }, "stream"},
		{"no rules", func(m *Migration) { m.BlockRules = nil }, "at least one rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := imageMigration()
			tt.edit(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMigrationFieldsAndLossy(t *testing.T) {
	m := imageMigration()
	m.RecordRules = []types.RecordRule{rules.NewAltTextFromImage("hero_image_id", "body")}
	assert.Equal(t, []string{"body", "hero_image_id"}, m.Fields())
	assert.True(t, m.Lossy())
	assert.False(t, imageMigration().Lossy())
	assert.Len(t, m.RuleNames(), 2)
}
