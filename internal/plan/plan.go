// Package plan loads migrations described in YAML files. A plan binds the
// parameterised rule kinds of package rules to a table:
//
//	migrations:
//	  - name: blog.0012_image_struct
//	    table: blog_blogpage
//	    key: page_ptr_id
//	    stream_fields: [body]
//	    rules:
//	      - kind: image_struct
//	        block_types: [promoted_item]
package plan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/blockshift/internal/migration"
	"github.com/mesh-intelligence/blockshift/internal/rules"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Rule kinds.
const (
	KindImageStruct      = "image_struct"
	KindDateFormat       = "date_format"
	KindContentSections  = "content_sections"
	KindAltTextFromImage = "alt_text_from_image"
	KindFieldDefaults    = "field_defaults"
)

var kinds = []any{KindImageStruct, KindDateFormat, KindContentSections, KindAltTextFromImage, KindFieldDefaults}

// Plan is the contents of one plan file.
type Plan struct {
	Migrations []MigrationSpec `yaml:"migrations" json:"migrations"`
}

// MigrationSpec describes one migration.
type MigrationSpec struct {
	Name         string     `yaml:"name" json:"name"`
	Description  string     `yaml:"description" json:"description"`
	Table        string     `yaml:"table" json:"table"`
	Key          string     `yaml:"key" json:"key"`
	StreamFields []string   `yaml:"stream_fields" json:"stream_fields"`
	SyncRevision bool       `yaml:"sync_revision" json:"sync_revision"`
	Rules        []RuleSpec `yaml:"rules" json:"rules"`
}

// RuleSpec configures one rule. Which fields apply depends on Kind.
type RuleSpec struct {
	Kind string `yaml:"kind" json:"kind"`

	// image_struct, date_format
	BlockTypes []string `yaml:"block_types" json:"block_types"`

	// image_struct
	ImageField string `yaml:"image_field" json:"image_field"`
	AltField   string `yaml:"alt_field" json:"alt_field"`
	Target     string `yaml:"target" json:"target"`

	// date_format
	ListField     string `yaml:"list_field" json:"list_field"`
	Field         string `yaml:"field" json:"field"`
	StoredLayout  string `yaml:"stored_layout" json:"stored_layout"`
	DisplayLayout string `yaml:"display_layout" json:"display_layout"`

	// alt_text_from_image; alt_field is shared with image_struct
	ImageTable string `yaml:"image_table" json:"image_table"`
	TitleField string `yaml:"title_field" json:"title_field"`
	MaxLength  int    `yaml:"max_length" json:"max_length"`

	// field_defaults
	Direction string         `yaml:"direction" json:"direction"`
	Values    map[string]any `yaml:"values" json:"values"`
}

// Validate checks the plan.
func (p Plan) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Migrations, validation.Required),
	)
}

// Validate checks one migration spec.
func (m MigrationSpec) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.Table, validation.Required, types.IsIdentifier),
		validation.Field(&m.Key, types.IsIdentifier),
		validation.Field(&m.StreamFields, validation.Each(types.IsIdentifier)),
		validation.Field(&m.Rules, validation.Required),
	)
}

// Validate checks the fields the rule's kind needs.
func (r RuleSpec) Validate() error {
	is := func(k ...string) bool {
		for _, want := range k {
			if r.Kind == want {
				return true
			}
		}
		return false
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, validation.In(kinds...)),
		validation.Field(&r.BlockTypes, validation.When(is(KindImageStruct, KindDateFormat), validation.Required)),
		validation.Field(&r.Field, validation.When(is(KindDateFormat), validation.Required)),
		validation.Field(&r.ImageField, validation.When(is(KindAltTextFromImage), validation.Required, types.IsIdentifier)),
		validation.Field(&r.AltField, validation.When(is(KindAltTextFromImage), validation.Required, types.IsIdentifier)),
		validation.Field(&r.ImageTable, types.IsIdentifier),
		validation.Field(&r.TitleField, types.IsIdentifier),
		validation.Field(&r.MaxLength, validation.Min(0)),
		validation.Field(&r.Direction, validation.When(is(KindFieldDefaults),
			validation.Required, validation.In("forwards", "backwards"))),
		validation.Field(&r.Values, validation.When(is(KindFieldDefaults), validation.Required)),
	)
}

// Parse decodes and validates a plan.
func Parse(data []byte) (Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Plan{}, fmt.Errorf("plan is empty")
	}
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Load reads a plan from r.
func Load(r io.Reader) (Plan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// LoadFile reads the plan at path.
func LoadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, in name order, and
// returns their migrations. A missing directory holds no plans.
func LoadDir(dir string) ([]migration.Migration, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []migration.Migration
	for _, name := range names {
		p, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		ms, err := p.Build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, ms...)
	}
	return out, nil
}

// Build turns the plan into migrations.
func (p Plan) Build() ([]migration.Migration, error) {
	out := make([]migration.Migration, 0, len(p.Migrations))
	for _, spec := range p.Migrations {
		m, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", spec.Name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Build turns one spec into a migration. An unset key defaults to
// page_ptr_id.
func (m MigrationSpec) Build() (migration.Migration, error) {
	out := migration.Migration{
		Name:         m.Name,
		Description:  m.Description,
		Table:        m.Table,
		Key:          m.Key,
		StreamFields: m.StreamFields,
		SyncRevision: m.SyncRevision,
	}
	if out.Key == "" {
		out.Key = "page_ptr_id"
	}
	for i, r := range m.Rules {
		if err := r.bind(&out); err != nil {
			return migration.Migration{}, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return out, nil
}

func (r RuleSpec) bind(m *migration.Migration) error {
	switch r.Kind {
	case KindImageStruct:
		rule := rules.NewImageStruct(r.BlockTypes...)
		rule.ImageField = or(r.ImageField, rule.ImageField)
		rule.AltField = or(r.AltField, rule.AltField)
		rule.Target = or(r.Target, rule.Target)
		m.BlockRules = append(m.BlockRules, rule)

	case KindDateFormat:
		rule := rules.NewDateFormat(r.BlockTypes, r.ListField, r.Field)
		rule.StoredLayout = or(r.StoredLayout, rule.StoredLayout)
		rule.DisplayLayout = or(r.DisplayLayout, rule.DisplayLayout)
		m.BlockRules = append(m.BlockRules, rule)

	case KindContentSections:
		m.TreeRules = append(m.TreeRules, rules.NewContentSections())

	case KindAltTextFromImage:
		rule := rules.NewAltTextFromImage(r.ImageField, r.AltField)
		rule.ImageTable = or(r.ImageTable, rule.ImageTable)
		rule.TitleField = or(r.TitleField, rule.TitleField)
		if r.MaxLength > 0 {
			rule.MaxLength = r.MaxLength
		}
		m.RecordRules = append(m.RecordRules, rule)

	case KindFieldDefaults:
		dir, err := types.ParseDirection(r.Direction)
		if err != nil {
			return err
		}
		m.RecordRules = append(m.RecordRules, &rules.FieldDefaults{Direction: dir, Values: r.Values})

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownRuleKind, r.Kind)
	}
	return nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
