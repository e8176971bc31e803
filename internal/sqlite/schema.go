package sqlite

const createLedger = `CREATE TABLE IF NOT EXISTS blockshift_migrations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    run_id TEXT NOT NULL,
    applied_at TEXT NOT NULL
);`

// Demo schema: the subset of a Wagtail site the built-in migrations touch.
const (
	createImages = `CREATE TABLE IF NOT EXISTS wagtailimages_image (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL
);`

	createRevisions = `CREATE TABLE IF NOT EXISTS wagtailcore_revision (
    id INTEGER PRIMARY KEY,
    object_id TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createInsightsPages = `CREATE TABLE IF NOT EXISTS articles_insightspage (
    page_ptr_id INTEGER PRIMARY KEY,
    body TEXT NOT NULL DEFAULT '[]',
    hero_image_id INTEGER REFERENCES wagtailimages_image(id),
    hero_image_alt_text TEXT NOT NULL DEFAULT ''
);`

	createRecordArticlePages = `CREATE TABLE IF NOT EXISTS articles_recordarticlepage (
    page_ptr_id INTEGER PRIMARY KEY,
    promoted_links TEXT
);`

	createUKGWAHomePages = `CREATE TABLE IF NOT EXISTS ukgwa_ukgwahomepage (
    page_ptr_id INTEGER PRIMARY KEY,
    featured_links_heading TEXT,
    featured_links TEXT
);`

	idxRevisionsObject = `CREATE INDEX IF NOT EXISTS idx_revision_object ON wagtailcore_revision(object_id, created_at);`
)

// demoDDL lists the demo tables in dependency order.
var demoDDL = []string{
	createImages,
	createRevisions,
	createInsightsPages,
	createRecordArticlePages,
	createUKGWAHomePages,
	idxRevisionsObject,
}
