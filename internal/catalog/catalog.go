// Package catalog holds the built-in content migrations for the articles and
// ukgwa page models.
package catalog

import (
	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/internal/rules"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Tables and keys of the page models the built-ins touch. Wagtail page
// subclasses are keyed by page_ptr_id.
const (
	InsightsPage      = "articles_insightspage"
	RecordArticlePage = "articles_recordarticlepage"
	UKGWAHomePage     = "ukgwa_ukgwahomepage"
	PageKey           = "page_ptr_id"
)

// Built-in migration names.
const (
	ImageBlockStructure = "articles.0028_migrate_image_block_values_to_new_block_structure"
	HeroImageAltText    = "articles.0029_migrate_hero_image_alt_text"
	ContentSections     = "articles.0036_migrate_insights_body_content_to_content_sections"
	PublicationDate     = "articles.0090_publication_date_charblock"
	FeaturedLinksReset  = "ukgwa.0003_set_featured_header_and_links_to_empty_values"
)

// Migrations returns the built-in migrations in application order.
func Migrations() []migration.Migration {
	return []migration.Migration{
		{
			Name:         ImageBlockStructure,
			Description:  "Move teaser_image and teaser_alt_text of promoted and featured blocks into an image struct.",
			Table:        InsightsPage,
			Key:          PageKey,
			StreamFields: []string{"body"},
			BlockRules: []types.BlockRule{
				rules.NewImageStruct("promoted_item", "featured_record"),
			},
		},
		{
			Name:        HeroImageAltText,
			Description: "Fill hero_image_alt_text from the hero image title.",
			Table:       InsightsPage,
			Key:         PageKey,
			RecordRules: []types.RecordRule{
				rules.NewAltTextFromImage("hero_image_id", "hero_image_alt_text"),
			},
		},
		{
			Name:         ContentSections,
			Description:  "Group a flat insights body into content sections and sub-sections.",
			Table:        InsightsPage,
			Key:          PageKey,
			StreamFields: []string{"body"},
			TreeRules:    []types.TreeRule{rules.NewContentSections()},
			SyncRevision: true,
		},
		{
			Name:         PublicationDate,
			Description:  "Store promoted link publication dates as display text.",
			Table:        RecordArticlePage,
			Key:          PageKey,
			StreamFields: []string{"promoted_links"},
			BlockRules: []types.BlockRule{
				rules.NewDateFormat([]string{"promoted_link"}, "promoted_items", "publication_date"),
			},
		},
		{
			Name:        FeaturedLinksReset,
			Description: "On rollback, give the featured links columns values the older schema accepts.",
			Table:       UKGWAHomePage,
			Key:         PageKey,
			RecordRules: []types.RecordRule{
				&rules.FieldDefaults{
					Direction: types.Backwards,
					Values: map[string]any{
						"featured_links_heading": "",
						"featured_links":         "[]",
					},
				},
			},
		},
	}
}

// Register adds the built-ins to reg.
func Register(reg *migration.Registry) error {
	return reg.Register(Migrations()...)
}
