// Package config loads the engine configuration.
//
// Configuration files are YAML, or TOML when the file name ends in .toml.
// Missing settings take their defaults:
//
//	schema: ./schema.yaml
//	statement_timeout: 30s
//	remote:
//	  timeout: 5s
//	  max_rows: 10000
//	pagination:
//	  default_limit: 25
//	  max_limit: 1000
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// Schema is the path of the metadata snapshot.
	Schema string `yaml:"schema" toml:"schema"`
	// StatementTimeout bounds the execution of each statement.
	StatementTimeout time.Duration `yaml:"statement_timeout" toml:"statement_timeout"`
	// ServerTimeout also sets the timeout as a session variable on
	// dialects supporting it, so the server aborts the statement.
	ServerTimeout bool `yaml:"server_timeout" toml:"server_timeout"`
	// SlowQuery logs statements running longer. Zero disables it.
	SlowQuery time.Duration `yaml:"slow_query" toml:"slow_query"`

	Remote     Remote     `yaml:"remote" toml:"remote"`
	Pagination Pagination `yaml:"pagination" toml:"pagination"`
	Formula    Formula    `yaml:"formula" toml:"formula"`
	Log        Log        `yaml:"log" toml:"log"`
}

// Remote configures fetches of relations living in another source.
type Remote struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	MaxRows int           `yaml:"max_rows" toml:"max_rows"`
	// CacheTTL keeps fetched rows in the remote cache, if one is set.
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// Pagination bounds list requests.
type Pagination struct {
	DefaultLimit int `yaml:"default_limit" toml:"default_limit"`
	MaxLimit     int `yaml:"max_limit" toml:"max_limit"`
}

// Formula configures the formula compiler.
type Formula struct {
	// CacheSize is the number of parsed formulas kept in memory.
	CacheSize int `yaml:"cache_size" toml:"cache_size"`
}

// Log configures the engine logger.
type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	// Statements logs every statement at debug level.
	Statements bool `yaml:"statements" toml:"statements"`
}

// Defaults.
const (
	DefaultStatementTimeout = 30 * time.Second
	DefaultRemoteTimeout    = 5 * time.Second
	DefaultRemoteMaxRows    = 10000
	DefaultLimit            = 25
	DefaultMaxLimit         = 1000
	DefaultFormulaCacheSize = 1024
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Schema:           "schema.yaml",
		StatementTimeout: DefaultStatementTimeout,
		Remote: Remote{
			Timeout: DefaultRemoteTimeout,
			MaxRows: DefaultRemoteMaxRows,
		},
		Pagination: Pagination{
			DefaultLimit: DefaultLimit,
			MaxLimit:     DefaultMaxLimit,
		},
		Formula: Formula{CacheSize: DefaultFormulaCacheSize},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file at path. Relative schema paths are
// resolved against the directory of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		cfg, err = ParseTOML(data)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if cfg.Schema != "" && !filepath.IsAbs(cfg.Schema) {
		cfg.Schema = filepath.Join(filepath.Dir(path), cfg.Schema)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration over the defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTOML decodes a TOML configuration over the defaults and validates it.
func ParseTOML(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports all invalid settings.
func (c *Config) Validate() error {
	var errs []error
	if c.StatementTimeout < 0 {
		errs = append(errs, errors.New("statement_timeout must not be negative"))
	}
	if c.SlowQuery < 0 {
		errs = append(errs, errors.New("slow_query must not be negative"))
	}
	if c.Remote.Timeout < 0 {
		errs = append(errs, errors.New("remote.timeout must not be negative"))
	}
	if c.Remote.MaxRows < 0 {
		errs = append(errs, errors.New("remote.max_rows must not be negative"))
	}
	if c.Remote.CacheTTL < 0 {
		errs = append(errs, errors.New("remote.cache_ttl must not be negative"))
	}
	if c.Pagination.DefaultLimit <= 0 {
		errs = append(errs, errors.New("pagination.default_limit must be positive"))
	}
	if c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		errs = append(errs, fmt.Errorf("pagination.max_limit %d is below default_limit %d", c.Pagination.MaxLimit, c.Pagination.DefaultLimit))
	}
	if c.Formula.CacheSize < 0 {
		errs = append(errs, errors.New("formula.cache_size must not be negative"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Logger returns a logger writing to w in the configured format and level.
func (l Log) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
