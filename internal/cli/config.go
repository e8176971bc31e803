package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/blockshift/internal/logging"
	"github.com/mesh-intelligence/blockshift/internal/paths"
	"github.com/mesh-intelligence/blockshift/internal/snapshot"
	"github.com/mesh-intelligence/blockshift/internal/sqlite"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "BLOCKSHIFT"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# blockshift configuration
# Every key can be overridden with a BLOCKSHIFT_ environment variable,
# e.g. BLOCKSHIFT_BACKEND=postgres or BLOCKSHIFT_SNAPSHOT_DIR=/var/backups.

# sqlite or postgres
backend: sqlite

# SQLite database file; relative paths are taken from the data directory.
# database: blockshift.sqlite3

# Postgres connection string
# dsn: postgres://wagtail@localhost:5432/wagtail?sslmode=disable

batch_size: 100

# What to do when a stored date cannot be parsed: fail or skip
parse_errors: fail

log:
  level: info
  format: console

snapshot:
  enabled: true
  # dir: snapshots
  # endpoint: localhost:9000
  # bucket: blockshift-snapshots
  # access_key:
  # secret_key:
  # secure: true
`

// settings is the decoded configuration.
type settings struct {
	types.Config `mapstructure:",squash"`

	ParseErrors string           `mapstructure:"parse_errors"`
	PlansDir    string           `mapstructure:"plans_dir"`
	Log         logSettings      `mapstructure:"log"`
	Snapshot    snapshotSettings `mapstructure:"snapshot"`
}

type logSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type snapshotSettings struct {
	snapshot.BucketConfig `mapstructure:",squash"`

	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// defaults lists every key so that environment overrides reach Unmarshal.
func defaults(l paths.Layout) map[string]any {
	rev := types.DefaultRevisionConfig()
	return map[string]any{
		"backend":                 types.BackendSQLite,
		"database":                paths.DatabaseFile,
		"dsn":                     "",
		"batch_size":              types.DefaultBatchSize,
		"parse_errors":            "fail",
		"plans_dir":               l.Plans(),
		"log.level":               "info",
		"log.format":              logging.FormatConsole,
		"revision.table":          rev.Table,
		"revision.object_column":  rev.ObjectColumn,
		"revision.content_column": rev.ContentColumn,
		"revision.created_column": rev.CreatedColumn,
		"snapshot.enabled":        true,
		"snapshot.dir":            l.Snapshots(),
		"snapshot.endpoint":       "",
		"snapshot.bucket":         "",
		"snapshot.prefix":         "",
		"snapshot.access_key":     "",
		"snapshot.secret_key":     "",
		"snapshot.secure":         true,
	}
}

// loadSettings reads config.yaml from the config directory, creating the
// directory and a default file on first run.
func loadSettings(l paths.Layout) (settings, error) {
	if err := os.MkdirAll(l.ConfigDir, 0o755); err != nil {
		return settings{}, fmt.Errorf("create config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(l.ConfigFile()); err != nil {
		return settings{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	for k, val := range defaults(l) {
		v.SetDefault(k, val)
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(l.ConfigDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, fmt.Errorf("decode config: %w", err)
	}
	s.Database = underDir(l.DataDir, s.Database)
	s.Snapshot.Dir = underDir(l.DataDir, s.Snapshot.Dir)
	s.PlansDir = underDir(l.ConfigDir, s.PlansDir)
	return s, nil
}

// underDir anchors a relative path at dir.
func underDir(dir, p string) string {
	if p == "" || p == sqlite.MemoryDatabase || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ensureDefaultConfigFile creates config.yaml unless it exists.
func ensureDefaultConfigFile(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// load resolves directories, reads settings and builds the logger.
func (e *env) load() error {
	l, err := paths.Resolve(e.flags.configDir, e.flags.dataDir)
	if err != nil {
		return fmt.Errorf("resolve directories: %w", err)
	}
	s, err := loadSettings(l)
	if err != nil {
		return err
	}
	log, err := logging.New(s.Log.Level, s.Log.Format)
	if err != nil {
		return usageError{err}
	}
	e.layout, e.settings, e.log = l, s, log
	return nil
}
