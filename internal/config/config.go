package config

import (
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

// Handler kinds a binding can name.
const (
	KindNull  = "null"
	KindJSON  = "json"
	KindCount = "count"
	KindText  = "text"
	KindLua   = "lua"
)

// Environment overrides.
const (
	EnvAddr      = "XMLHUB_ADDR"
	EnvLogLevel  = "XMLHUB_LOG_LEVEL"
	EnvLogFormat = "XMLHUB_LOG_FORMAT"
)

// Config holds the command line tool and server configuration.
type Config struct {
	Log      LogConfig    `toml:"log" yaml:"log"`
	Parse    ParseConfig  `toml:"parse" yaml:"parse"`
	Server   ServerConfig `toml:"server" yaml:"server"`
	Bindings []Binding    `toml:"bindings" yaml:"bindings"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// ParseConfig mirrors the hub parse options. Zero limits use the hub defaults.
type ParseConfig struct {
	KeepWhitespace bool `toml:"keep_whitespace" yaml:"keep_whitespace"`
	MaxDepth       int  `toml:"max_depth" yaml:"max_depth"`
	MaxAttrs       int  `toml:"max_attrs" yaml:"max_attrs"`
	MaxTokenSize   int  `toml:"max_token_size" yaml:"max_token_size"`
}

// ServerConfig holds HTTP settings for the serve command.
type ServerConfig struct {
	Addr         string   `toml:"addr" yaml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
	MaxBodyBytes int64    `toml:"max_body_bytes" yaml:"max_body_bytes"`
}

// Binding attaches a built-in handler kind to an element name.
type Binding struct {
	Element string `toml:"element" yaml:"element"`
	Handler string `toml:"handler" yaml:"handler"`
	Script  string `toml:"script" yaml:"script"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Format is a config file encoding.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "toml"
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a TOML or YAML file, chosen by extension, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, detectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data and applies defaults.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func detectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 30 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 30 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 32 << 20
	}
}

// ApplyEnv overrides fields from the XMLHUB_* variables returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q: want text or json", c.Log.Format))
	}
	if c.Parse.MaxDepth < 0 || c.Parse.MaxAttrs < 0 || c.Parse.MaxTokenSize < 0 {
		errs = append(errs, errors.New("parse limits must be >= 0"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is required"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server max_body_bytes must be >= 0"))
	}

	seen := make(map[string]bool, len(c.Bindings))
	for i, b := range c.Bindings {
		if err := b.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("binding %d: %w", i, err))
			continue
		}
		if seen[b.Element] {
			errs = append(errs, fmt.Errorf("binding %d: element %q bound twice", i, b.Element))
		}
		seen[b.Element] = true
	}
	return errors.Join(errs...)
}

// Validate checks a single binding.
func (b Binding) Validate() error {
	if b.Element == "" {
		return errors.New("element is required")
	}
	switch b.Handler {
	case KindNull, KindJSON, KindCount, KindText:
		if b.Script != "" {
			return fmt.Errorf("handler %q does not take a script", b.Handler)
		}
	case KindLua:
		if b.Script == "" {
			return errors.New("lua handler requires a script")
		}
	default:
		return fmt.Errorf("unknown handler %q", b.Handler)
	}
	return nil
}

// ParseBinding parses the command line form element=kind or element=lua:script.
func ParseBinding(s string) (Binding, error) {
	element, kind, ok := strings.Cut(s, "=")
	if !ok {
		return Binding{}, fmt.Errorf("binding %q: want element=handler", s)
	}
	b := Binding{Element: strings.TrimSpace(element), Handler: strings.TrimSpace(kind)}
	if handler, script, ok := strings.Cut(b.Handler, ":"); ok && handler == KindLua {
		b.Handler = handler
		b.Script = script
	}
	if err := b.Validate(); err != nil {
		return Binding{}, fmt.Errorf("binding %q: %w", s, err)
	}
	return b, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger builds the configured slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
