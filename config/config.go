// Package config loads the print relay's settings for the standalone binary.
//
// Settings are layered: built-in defaults, then an optional YAML or TOML
// file, then a .env file, then the process environment. Later layers win.
//
// Example configuration:
//
//	api_url: https://shop.example.com/api/printData
//	api_token: ${PRINT_TOKEN}
//	printer_url: https://192.168.1.50:9100
//	poll_interval: 5s
//	max_poll_interval: 30s
//	backoff_multiplier: 1.5
//	status_port: 8080
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/printrelay/internal/logging"
)

// minPollInterval is the shortest allowed poll interval. Intervals are whole
// seconds, so anything shorter cannot be represented.
const minPollInterval = 1 * time.Second

// Config is the root configuration structure of the relay.
//
// It maps directly to the YAML and TOML file structure. Use [Load] to build a
// Config from all layers, or [Defaults] for the built-in values.
type Config struct {
	// APIURL is the job API endpoint polled for print data.
	APIURL string `yaml:"api_url" toml:"api_url"`

	// APIToken is the shared secret posted as the token form field.
	APIToken string `yaml:"api_token" toml:"api_token"`

	// APITimeout bounds each request to the job API and the printer.
	APITimeout Duration `yaml:"api_timeout" toml:"api_timeout"`

	// PrinterURL is where decoded XML documents are posted.
	PrinterURL string `yaml:"printer_url" toml:"printer_url"`

	// PollInterval is the base interval, used after every poll that found a job.
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval"`

	// MaxPollInterval is the ceiling idle polls back off to.
	MaxPollInterval Duration `yaml:"max_poll_interval" toml:"max_poll_interval"`

	// BackoffMultiplier scales the interval after every idle poll.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier"`

	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	// LogFile receives a copy of the log. Empty disables the file.
	LogFile string `yaml:"log_file" toml:"log_file"`

	// StatusPort serves the status API when positive.
	StatusPort int `yaml:"status_port" toml:"status_port"`

	// Preflight checks both endpoints before polling starts.
	Preflight bool `yaml:"preflight" toml:"preflight"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		APIURL:            "http://localhost:8000/api/printData",
		APITimeout:        Duration(10 * time.Second),
		PrinterURL:        "http://192.168.1.100:9100",
		PollInterval:      Duration(5 * time.Second),
		MaxPollInterval:   Duration(30 * time.Second),
		BackoffMultiplier: 1.5,
		LogLevel:          "info",
		LogFormat:         "text",
		LogFile:           "logs/printrelay.log",
		Preflight:         true,
	}
}

// Duration wraps time.Duration for config decoding.
//
// It accepts Go duration strings ("5s", "1m") and bare integers, which are
// read as seconds.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler for Duration.
func (d *Duration) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case int64:
		*d = Duration(time.Duration(val) * time.Second)
		return nil
	case string:
		parsed, err := ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %v: want a string or integer", v)
	}
}

// ParseDuration parses a Go duration string or a bare integer of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load builds the configuration from defaults, the file at path, the .env
// file at envFile, and the environment, then validates it.
//
// An empty path skips the config file. A missing envFile is ignored; the
// variables it would set may come from the environment instead.
func Load(path, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data, formatOf(path)); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML or TOML data on top of the defaults and validates the
// result. format is "yaml" or "toml". The environment is not consulted except
// for ${VAR} expansion.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.decode(data, format); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// existing environment variables take precedence over the file
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// decode overlays file data onto c and expands ${VAR} references.
func (c *Config) decode(data []byte, format string) error {
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	case "yaml", "":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}

	fields := []struct {
		name string
		ptr  *string
	}{
		{"api_url", &c.APIURL},
		{"api_token", &c.APIToken},
		{"printer_url", &c.PrinterURL},
		{"log_file", &c.LogFile},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		ptr *string
	}{
		{"API_URL", &c.APIURL},
		{"API_TOKEN", &c.APIToken},
		{"PRINTER_URL", &c.PrinterURL},
		{"LOG_LEVEL", &c.LogLevel},
		{"LOG_FORMAT", &c.LogFormat},
		{"LOG_FILE", &c.LogFile},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.ptr = v
		}
	}

	durs := []struct {
		key string
		ptr *Duration
	}{
		{"API_TIMEOUT", &c.APITimeout},
		{"POLL_INTERVAL", &c.PollInterval},
		{"MAX_POLL_INTERVAL", &c.MaxPollInterval},
	}
	for _, d := range durs {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.ptr = Duration(parsed)
	}

	if v, ok := lookup("BACKOFF_MULTIPLIER"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("BACKOFF_MULTIPLIER: invalid number %q", v)
		}
		c.BackoffMultiplier = f
	}

	if v, ok := lookup("STATUS_PORT"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("STATUS_PORT: invalid port %q", v)
		}
		c.StatusPort = n
	}

	if v, ok := lookup("PREFLIGHT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PREFLIGHT: invalid boolean %q", v)
		}
		c.Preflight = b
	}

	return nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if err := validateURL("api_url", c.APIURL); err != nil {
		return err
	}
	if err := validateURL("printer_url", c.PrinterURL); err != nil {
		return err
	}

	if c.APITimeout.Duration() <= 0 {
		return fmt.Errorf("api_timeout must be positive, got %s", c.APITimeout.Duration())
	}

	poll := c.PollInterval.Duration()
	if poll < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, poll)
	}
	if poll%time.Second != 0 {
		return fmt.Errorf("poll_interval must be whole seconds, got %s", poll)
	}
	maxPoll := c.MaxPollInterval.Duration()
	if maxPoll%time.Second != 0 {
		return fmt.Errorf("max_poll_interval must be whole seconds, got %s", maxPoll)
	}
	if maxPoll < poll {
		return fmt.Errorf("max_poll_interval (%s) must not be below poll_interval (%s)", maxPoll, poll)
	}

	if c.BackoffMultiplier < 1 || math.IsNaN(c.BackoffMultiplier) || math.IsInf(c.BackoffMultiplier, 0) {
		return fmt.Errorf("backoff_multiplier must be a finite number >= 1, got %v", c.BackoffMultiplier)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got %d", c.StatusPort)
	}

	return nil
}

// MaskedToken returns the token with all but its last four characters hidden.
func (c *Config) MaskedToken() string {
	if c.APIToken == "" {
		return "(none)"
	}
	if len(c.APIToken) <= 4 {
		return strings.Repeat("*", len(c.APIToken))
	}
	return strings.Repeat("*", len(c.APIToken)-4) + c.APIToken[len(c.APIToken)-4:]
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", field, err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (http:// or https://)", field)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https, got %q", field, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s: url has no host", field)
	}
	return nil
}
