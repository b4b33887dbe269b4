// Package config loads pg2sqlite settings from YAML or TOML files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/source"
	"gopkg.in/yaml.v3"
)

// Migration modes.
const (
	ModeFull       = "full"
	ModeSchemaOnly = "schema_only"
	ModeDataOnly   = "data_only"
)

// Progress styles. ProgressNone disables progress output.
const (
	ProgressNone = "none"
	ProgressBar  = "bar"
	ProgressJSON = "json"
	ProgressTUI  = "tui"
)

const redacted = "[REDACTED]"

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Config holds all configuration for a run
type Config struct {
	Source    SourceConfig    `yaml:"source" toml:"source"`
	Target    TargetConfig    `yaml:"target" toml:"target"`
	Migration MigrationConfig `yaml:"migration" toml:"migration"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// SourceConfig holds PostgreSQL connection settings. Either DSN or Host and
// Database must be set.
type SourceConfig struct {
	DSN      string   `yaml:"dsn" toml:"dsn"`
	Driver   string   `yaml:"driver" toml:"driver"` // pgx (default) or pq
	Host     string   `yaml:"host" toml:"host"`
	Port     int      `yaml:"port" toml:"port"`
	Database string   `yaml:"database" toml:"database"`
	User     string   `yaml:"user" toml:"user"`
	Password string   `yaml:"password" toml:"password"`
	SSLMode  string   `yaml:"ssl_mode" toml:"ssl_mode"`
	Schemas  []string `yaml:"schemas" toml:"schemas"`
	MaxConns int      `yaml:"max_conns" toml:"max_conns"`
}

// TargetConfig holds destination settings.
type TargetConfig struct {
	// Path is the SQLite file, or STDOUT to print DDL only.
	Path          string `yaml:"path" toml:"path"`
	Overwrite     bool   `yaml:"overwrite" toml:"overwrite"`
	JournalMode   string `yaml:"journal_mode" toml:"journal_mode"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" toml:"busy_timeout_ms"`
}

// MigrationConfig holds migration behavior settings
type MigrationConfig struct {
	Mode        string `yaml:"mode" toml:"mode"` // full, schema_only or data_only
	NoViews     bool   `yaml:"no_views" toml:"no_views"`
	Progress    string `yaml:"progress" toml:"progress"`
	Validate    bool   `yaml:"validate" toml:"validate"`
	ReportEvery int    `yaml:"report_every" toml:"report_every"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	SuppressWarnings bool
}

// Load reads configuration from a YAML or TOML file.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a file with options. Files
// ending in .toml are decoded as TOML, everything else as YAML.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	cfg, err := ReadFile(path, opts)
	if err != nil {
		return nil, err
	}
	return cfg.Finalize()
}

// ReadFile decodes a config file without applying defaults, so command-line
// flags can override it before Finalize.
func ReadFile(path string, opts LoadOptions) (*Config, error) {
	// Check file permissions before reading (warns if insecure)
	if warning := checkFilePermissions(path); warning != "" && !opts.SuppressWarnings {
		fmt.Fprint(os.Stderr, warning)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Decode(data, formatFor(path))
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// LoadBytes reads configuration from YAML bytes.
func LoadBytes(data []byte) (*Config, error) {
	cfg, err := Decode(data, "yaml")
	if err != nil {
		return nil, err
	}
	return cfg.Finalize()
}

// Decode parses data in the given format ("yaml" or "toml") after
// expanding environment variables. Defaults and validation are not applied,
// so flags can still be layered on top.
func Decode(data []byte, format string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case "yaml", "":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("parsing config: unknown format %q", format)
	}
	return &cfg, nil
}

// Finalize applies defaults and validates.
func (c *Config) Finalize() (*Config, error) {
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Driver == "" {
		c.Source.Driver = "pgx"
	}
	c.Source.Driver = source.Canonicalize(c.Source.Driver)
	if c.Source.DSN == "" {
		if c.Source.Port == 0 {
			c.Source.Port = 5432
		}
		if c.Source.SSLMode == "" {
			c.Source.SSLMode = "require" // Secure default for PostgreSQL
		}
	}
	if len(c.Source.Schemas) == 0 {
		c.Source.Schemas = []string{"public"}
	}
	if c.Source.MaxConns == 0 {
		c.Source.MaxConns = 2
	}

	if !c.IsStdout() {
		c.Target.Path = expandTilde(c.Target.Path)
	}
	if c.Target.JournalMode == "" {
		c.Target.JournalMode = "delete"
	}
	c.Target.JournalMode = strings.ToLower(c.Target.JournalMode)
	if c.Target.BusyTimeoutMS == 0 {
		c.Target.BusyTimeoutMS = 5000
	}

	if c.Migration.Mode == "" {
		c.Migration.Mode = ModeFull
	}
	if c.Migration.Progress == "" {
		c.Migration.Progress = ProgressNone
	}
	if c.Migration.ReportEvery == 0 {
		c.Migration.ReportEvery = 1000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

var journalModes = map[string]bool{
	"delete": true, "truncate": true, "persist": true, "memory": true, "wal": true, "off": true,
}

func (c *Config) validate() error {
	// Validate source
	if c.Source.DSN == "" && (c.Source.Host == "" || c.Source.Database == "") {
		return fmt.Errorf("source.dsn or source.host and source.database are required")
	}
	if !source.IsRegistered(c.Source.Driver) {
		return fmt.Errorf("source.driver must be one of %s, got '%s'",
			strings.Join(source.Available(), ", "), c.Source.Driver)
	}
	seen := make(map[string]bool)
	for _, s := range c.Source.Schemas {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("source.schemas contains an empty name")
		}
		if seen[s] {
			return fmt.Errorf("source.schemas lists '%s' twice", s)
		}
		seen[s] = true
	}
	if c.Source.MaxConns < 1 {
		return fmt.Errorf("source.max_conns must be at least 1")
	}

	// Validate target
	if c.Target.Path == "" {
		return fmt.Errorf("target.path is required")
	}
	if !journalModes[c.Target.JournalMode] {
		return fmt.Errorf("target.journal_mode '%s' is not a SQLite journal mode", c.Target.JournalMode)
	}
	if c.Target.BusyTimeoutMS < 0 {
		return fmt.Errorf("target.busy_timeout_ms must not be negative")
	}

	// Validate migration settings
	switch c.Migration.Mode {
	case ModeFull, ModeSchemaOnly, ModeDataOnly:
	default:
		return fmt.Errorf("migration.mode must be 'full', 'schema_only' or 'data_only', got '%s'", c.Migration.Mode)
	}
	if c.IsStdout() && c.Migration.Mode == ModeDataOnly {
		return fmt.Errorf("data_only mode needs a database file, not STDOUT")
	}
	switch c.Migration.Progress {
	case ProgressNone, ProgressBar, ProgressJSON, ProgressTUI:
	default:
		return fmt.Errorf("migration.progress must be 'none', 'bar', 'json' or 'tui', got '%s'", c.Migration.Progress)
	}
	if c.Migration.ReportEvery < 1 {
		return fmt.Errorf("migration.report_every must be at least 1")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", c.Logging.Format)
	}
	return nil
}

// IsStdout reports whether DDL should be printed instead of written to a file.
func (c *Config) IsStdout() bool {
	return c.Target.Path == "STDOUT" || c.Target.Path == "stdout"
}

// SourceDSN returns the source connection string.
func (c *Config) SourceDSN() string {
	if c.Source.DSN != "" {
		return c.Source.DSN
	}
	return buildPostgresDSN(c.Source.Host, c.Source.Port, c.Source.Database,
		c.Source.User, c.Source.Password, c.Source.SSLMode)
}

// buildPostgresDSN builds a PostgreSQL URL with escaped credentials.
func buildPostgresDSN(host string, port int, database, user, password, sslMode string) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	switch {
	case user != "" && password != "":
		u.User = url.UserPassword(user, password)
	case user != "":
		u.User = url.User(user)
	}
	return u.String()
}

var kvPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// redactDSN hides the password in a URL or key=value connection string.
func redactDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return redacted
		}
		return strings.Replace(u.Redacted(), ":xxxxx@", ":"+redacted+"@", 1)
	}
	return kvPassword.ReplaceAllString(dsn, "${1}"+redacted)
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy
	sanitized.Source.Schemas = append([]string(nil), c.Source.Schemas...)

	if sanitized.Source.Password != "" {
		sanitized.Source.Password = redacted
	}
	if sanitized.Source.DSN != "" {
		sanitized.Source.DSN = redactDSN(sanitized.Source.DSN)
	}
	return &sanitized
}
