// Package config loads the travel-map run configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/travel-map/pkg/logging"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no --config flag is given.
	DefaultPath = "config.yml"

	// DefaultAPIBase is the travel-log API root.
	DefaultAPIBase = "https://traewelling.de/api/v1"

	// DefaultTokenEnv names the environment variable holding the bearer token.
	DefaultTokenEnv = "TRAEWELLING_BEARER_TOKEN"

	// MaxChunkSize is the most ids the polyline endpoint accepts per request.
	MaxChunkSize = 50
)

var (
	// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid config")
)

// Error describes a failure to load or validate a config file.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config is the complete run configuration.
type Config struct {
	// Ignore lists status ids and "A <-> B" place pairs to leave off the map.
	Ignore []string `yaml:"ignore" toml:"ignore"`

	// Routes lists local GPX files merged after the API geometry.
	Routes []string `yaml:"routes" toml:"routes"`

	API    API    `yaml:"api" toml:"api"`
	Output Output `yaml:"output" toml:"output"`
	Log    Log    `yaml:"log" toml:"log"`
}

// API configures the travel-log API access.
type API struct {
	Username          string  `yaml:"username" toml:"username"`
	StatusesURL       string  `yaml:"statuses_url" toml:"statuses_url"`
	PolylineURL       string  `yaml:"polyline_url" toml:"polyline_url"`
	TokenEnv          string  `yaml:"token_env" toml:"token_env"`
	UserAgent         string  `yaml:"user_agent" toml:"user_agent"`
	ChunkSize         int     `yaml:"chunk_size" toml:"chunk_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// Output configures the files written at the end of a run.
type Output struct {
	JSON        string `yaml:"json" toml:"json"`
	Template    string `yaml:"template" toml:"template"`
	Dir         string `yaml:"dir" toml:"dir"`
	Placeholder string `yaml:"placeholder" toml:"placeholder"`
	MetricsFile string `yaml:"metrics_file" toml:"metrics_file"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Pretty bool   `yaml:"pretty" toml:"pretty"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		API: API{
			PolylineURL: DefaultAPIBase + "/polyline/",
			TokenEnv:    DefaultTokenEnv,
			UserAgent:   "travel-map/0.1.0",
			ChunkSize:   MaxChunkSize,
		},
		Output: Output{
			JSON:        "polylines.json",
			Template:    "template.html",
			Dir:         "out",
			Placeholder: "GEOMETRY_PLACEHOLDER",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path, choosing the decoder by extension, then validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Op: "read", Path: path, Err: err}
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return Config{}, &Error{Op: "parse", Path: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, &Error{Op: "validate", Path: path, Err: err}
	}
	return cfg, nil
}

// Format is a config file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return Format(strings.TrimPrefix(filepath.Ext(path), "."))
	}
}

// Parse decodes data over the defaults. Unknown keys are rejected.
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document leaves the defaults in place.
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.API.Username = strings.TrimSpace(c.API.Username)
	if c.API.StatusesURL == "" && c.API.Username != "" {
		c.API.StatusesURL = StatusesURL(c.API.Username)
	}
}

// StatusesURL returns the statuses listing of user.
func StatusesURL(user string) string {
	return DefaultAPIBase + "/user/" + url.PathEscape(user) + "/statuses"
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.API.StatusesURL == "" {
		invalid("api.username or api.statuses_url is required")
	} else if err := checkURL(c.API.StatusesURL); err != nil {
		invalid("api.statuses_url: %v", err)
	}
	if c.API.PolylineURL == "" {
		invalid("api.polyline_url is required")
	} else if err := checkURL(c.API.PolylineURL); err != nil {
		invalid("api.polyline_url: %v", err)
	}
	if c.API.TokenEnv == "" {
		invalid("api.token_env is required")
	}
	if c.API.ChunkSize < 1 || c.API.ChunkSize > MaxChunkSize {
		invalid("api.chunk_size must be between 1 and %d (got %d)", MaxChunkSize, c.API.ChunkSize)
	}
	if c.API.RequestsPerSecond < 0 {
		invalid("api.requests_per_second must not be negative (got %g)", c.API.RequestsPerSecond)
	}
	if c.Output.JSON == "" {
		invalid("output.json is required")
	}
	if c.Output.Dir == "" {
		invalid("output.dir is required")
	}
	if c.Output.Template != "" && c.Output.Placeholder == "" {
		invalid("output.placeholder is required when output.template is set")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level: %v", err)
	}
	for i, route := range c.Routes {
		if strings.TrimSpace(route) == "" {
			invalid("routes[%d] is empty", i)
		}
	}

	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
