package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/internal/rules"
	"github.com/mesh-intelligence/blockshift/internal/sqlite"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

func demoStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, types.Config{
		Backend:   types.BackendSQLite,
		Database:  filepath.Join(t.TempDir(), "demo.sqlite3"),
		BatchSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.SeedDemo(ctx))
	return s
}

func demoRunner(t *testing.T, s types.Store) *migration.Runner {
	t.Helper()
	reg := migration.NewRegistry()
	require.NoError(t, Register(reg))
	return migration.NewRunner(s, reg)
}

func field(t *testing.T, s types.Store, table string, id int64, name string) any {
	t.Helper()
	row, err := s.Get(context.Background(), table, PageKey, id, []string{name})
	require.NoError(t, err)
	return row.Fields[name]
}

func TestMigrationsAreValid(t *testing.T) {
	reg := migration.NewRegistry()
	require.NoError(t, Register(reg))
	all := reg.All()
	require.Len(t, all, 5)
	assert.Equal(t, ImageBlockStructure, all[0].Name)
	assert.Equal(t, FeaturedLinksReset, all[4].Name)
}

func TestMigrateDemo(t *testing.T) {
	s := demoStore(t)
	ctx := context.Background()

	reports, err := demoRunner(t, s).Migrate(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 5)

	byName := make(map[string]migration.Report)
	for _, r := range reports {
		byName[r.Migration] = r
	}

	img := byName[ImageBlockStructure]
	assert.Equal(t, 3, img.Scanned)
	assert.Equal(t, 1, img.Updated)
	assert.Equal(t, 2, img.Unchanged)
	require.Len(t, img.Skipped, 1)
	assert.Equal(t, "b-bad", img.Skipped[0].BlockID)

	alt := byName[HeroImageAltText]
	assert.Equal(t, 2, alt.Updated)
	assert.Equal(t, "Reading room at Kew, 1977", field(t, s, InsightsPage, 10, "hero_image_alt_text"))
	assert.Len(t, []rune(field(t, s, InsightsPage, 11, "hero_image_alt_text").(string)), 100)

	sections := byName[ContentSections]
	assert.Equal(t, 2, sections.Updated)
	assert.Equal(t, 1, sections.RevisionsSynced)
	body, err := types.ParseTree([]byte(field(t, s, InsightsPage, 10, "body").(string)))
	require.NoError(t, err)
	require.NotEmpty(t, body)
	for _, b := range body {
		assert.Equal(t, rules.TypeContentSection, b.Type)
	}

	rev, err := s.LatestRevision(ctx, 10)
	require.NoError(t, err)
	content, err := types.DecodeValue(rev.Content)
	require.NoError(t, err)
	revBody, err := types.TreeFromValue(content.(map[string]any)["body"])
	require.NoError(t, err)
	assert.Equal(t, rules.TypeContentSection, revBody[0].Type)

	dates := byName[PublicationDate]
	assert.Equal(t, 1, dates.Updated)
	assert.Contains(t, field(t, s, RecordArticlePage, 20, "promoted_links"), "04 March 2021")

	assert.Equal(t, 1, byName[FeaturedLinksReset].Unchanged)

	applied, err := s.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 5)
}

func TestRollbackDemo(t *testing.T) {
	s := demoStore(t)
	ctx := context.Background()
	r := demoRunner(t, s)
	_, err := r.Migrate(ctx)
	require.NoError(t, err)

	rep, err := r.Rollback(ctx, PublicationDate)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Contains(t, field(t, s, RecordArticlePage, 20, "promoted_links"), "2021-03-04")

	rep, err = r.Rollback(ctx, FeaturedLinksReset)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, "", field(t, s, UKGWAHomePage, 30, "featured_links_heading"))

	before := field(t, s, InsightsPage, 10, "body")
	rep, err = r.Rollback(ctx, ContentSections)
	require.NoError(t, err)
	assert.True(t, rep.Lossy)
	assert.Zero(t, rep.Updated)
	assert.Equal(t, before, field(t, s, InsightsPage, 10, "body"))

	applied, err := s.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}
