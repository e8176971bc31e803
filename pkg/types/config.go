package types

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultBatchSize is the number of rows Scan loads per query.
const DefaultBatchSize = 100

// identifierPattern matches the table and column names blockshift is willing
// to interpolate into SQL.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a table or column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// IsIdentifier is the validation rule for table and column names.
var IsIdentifier = validation.Match(identifierPattern).Error("must be a plain SQL identifier")

// Config holds backend selection and parameters for opening a Store.
type Config struct {
	Backend   string         `json:"backend" yaml:"backend" mapstructure:"backend"`
	Database  string         `json:"database" yaml:"database" mapstructure:"database"`
	DSN       string         `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	BatchSize int            `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	Revision  RevisionConfig `json:"revision" yaml:"revision" mapstructure:"revision"`
}

// RevisionConfig names the table holding page revisions and its columns.
// The defaults match Wagtail's wagtailcore_revision table.
type RevisionConfig struct {
	Table         string `json:"table" yaml:"table" mapstructure:"table"`
	ObjectColumn  string `json:"object_column" yaml:"object_column" mapstructure:"object_column"`
	ContentColumn string `json:"content_column" yaml:"content_column" mapstructure:"content_column"`
	CreatedColumn string `json:"created_column" yaml:"created_column" mapstructure:"created_column"`
}

// DefaultRevisionConfig returns the Wagtail revision layout.
func DefaultRevisionConfig() RevisionConfig {
	return RevisionConfig{
		Table:         "wagtailcore_revision",
		ObjectColumn:  "object_id",
		ContentColumn: "content",
		CreatedColumn: "created_at",
	}
}

// WithDefaults fills unset optional fields.
func (c Config) WithDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	def := DefaultRevisionConfig()
	if c.Revision.Table == "" {
		c.Revision.Table = def.Table
	}
	if c.Revision.ObjectColumn == "" {
		c.Revision.ObjectColumn = def.ObjectColumn
	}
	if c.Revision.ContentColumn == "" {
		c.Revision.ContentColumn = def.ContentColumn
	}
	if c.Revision.CreatedColumn == "" {
		c.Revision.CreatedColumn = def.CreatedColumn
	}
	return c
}

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendSQLite, BackendPostgres)),
		validation.Field(&c.Database, validation.When(c.Backend == BackendSQLite, validation.Required)),
		validation.Field(&c.DSN, validation.When(c.Backend == BackendPostgres, validation.Required)),
		validation.Field(&c.BatchSize, validation.Min(1)),
		validation.Field(&c.Revision),
	)
}

// Validate checks that every configured name is a usable identifier.
func (r RevisionConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Table, validation.Required, IsIdentifier),
		validation.Field(&r.ObjectColumn, validation.Required, IsIdentifier),
		validation.Field(&r.ContentColumn, validation.Required, IsIdentifier),
		validation.Field(&r.CreatedColumn, validation.Required, IsIdentifier),
	)
}
