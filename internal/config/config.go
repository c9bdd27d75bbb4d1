// Package config loads the deplopush client configuration.
//
// Values are layered, later sources winning:
//   - built-in defaults (Default)
//   - a YAML file (deplopush.yaml, searched in ., ./config and /etc/deplopush)
//   - a .env file in the working directory, if present
//   - DEPLOPUSH_* environment variables
//   - command-line flags, applied by the caller
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"deplopush/internal/security"
	"deplopush/pkg/fileutil"
)

const (
	// FileName is the config file looked up in the default search paths.
	FileName = "deplopush.yaml"

	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "DEPLOPUSH_"

	DefaultServer         = "http://192.168.1.138:9421"
	DefaultDir            = "."
	DefaultMaxRetries     = 3
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 300 * time.Second
	DefaultLogFile        = "./deplopush.log"
)

// Config holds the client configuration
type Config struct {
	Server        string `yaml:"server" env:"SERVER"`
	Dir           string `yaml:"dir" env:"DIR"`
	ProjectPrefix string `yaml:"project_prefix" env:"PROJECT_PREFIX"`
	MaxRetries    int    `yaml:"max_retries" env:"MAX_RETRIES"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`

	// LogFile receives JSON log lines in append mode; empty disables it
	LogFile string `yaml:"log_file" env:"LOG_FILE"`

	// UploadsPerMinute paces uploads; zero means no pacing
	UploadsPerMinute int `yaml:"uploads_per_minute" env:"UPLOADS_PER_MINUTE"`

	MetricsFile string `yaml:"metrics_file" env:"METRICS_FILE"`
	Progress    bool   `yaml:"progress" env:"PROGRESS"`
	Verbose     bool   `yaml:"verbose" env:"VERBOSE"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server:         DefaultServer,
		Dir:            DefaultDir,
		MaxRetries:     DefaultMaxRetries,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		LogFile:        DefaultLogFile,
	}
}

// Load builds a configuration from defaults, the config file and the environment.
//
// path names an explicit config file which must exist. When path is empty the
// default locations are searched and a missing file is not an error. The
// returned string is the config file actually read, or "" if none was.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	if path == "" {
		path = fileutil.FindConfigOptional(FileName)
	} else if !fileutil.FileExists(path) {
		return nil, "", fmt.Errorf("config file not found: %s", path)
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, "", err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, "", err
	}

	cfg.Normalize()
	return cfg, path, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	// .env is optional; real environment variables take precedence over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Normalize trims whitespace and the server's trailing slash
func (c *Config) Normalize() {
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	c.Dir = strings.TrimSpace(c.Dir)
	c.ProjectPrefix = strings.TrimSpace(c.ProjectPrefix)
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var problems []string

	if err := security.ValidateServerURL(c.Server); err != nil {
		problems = append(problems, fmt.Sprintf("  - server: %v", err))
	}

	if c.Dir == "" {
		problems = append(problems, "  - dir: cannot be empty")
	}

	if c.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("  - max_retries: must be a positive integer, got %d", c.MaxRetries))
	}

	if c.ConnectTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("  - connect_timeout: must be positive, got %s", c.ConnectTimeout))
	}

	if c.ReadTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("  - read_timeout: must be positive, got %s", c.ReadTimeout))
	}

	if c.UploadsPerMinute < 0 {
		problems = append(problems, fmt.Sprintf("  - uploads_per_minute: cannot be negative, got %d", c.UploadsPerMinute))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}
