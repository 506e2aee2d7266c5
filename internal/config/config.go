// Package config loads the CLI configuration: compiled defaults first,
// then an optional YAML file, then environment overrides. Credentials
// come from the environment only and never touch the YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/fflog/fflog-go/internal/safefile"
)

// maxConfigBytes caps the config file read; anything near this size is
// not a config file.
const maxConfigBytes = 1 << 20

// ErrCredentialsRequired is returned by RequireCredentials when email or
// password is missing from the environment.
var ErrCredentialsRequired = errors.New("config: FFLOG_EMAIL and FFLOG_PASSWORD must be set")

// Config is everything the CLI can tune. Empty strings mean "use the
// component default" for the packages that have one.
type Config struct {
	// Email and Password authenticate against the report service.
	Email    string `yaml:"-" env:"FFLOG_EMAIL"`
	Password string `yaml:"-" env:"FFLOG_PASSWORD"`

	// Region is the reporting region name ("NA", "EU", "JP", "CN", "KR").
	Region string `yaml:"region" env:"FFLOG_REGION"`

	// Visibility is "public", "private" or "unlisted".
	Visibility string `yaml:"visibility" env:"FFLOG_VISIBILITY"`

	// GuildID attributes created reports to a guild; 0 leaves them
	// personal.
	GuildID int `yaml:"guild_id" env:"FFLOG_GUILD_ID"`

	// LogDir overrides combat-log directory discovery.
	LogDir string `yaml:"log_dir" env:"FFLOG_LOGDIR"`

	// NodePath is the Node.js binary that runs the vendor parser.
	NodePath string `yaml:"node_path" env:"FFLOG_NODE_PATH"`

	// CacheDir overrides where the parser bundle is cached.
	CacheDir string `yaml:"cache_dir" env:"FFLOG_CACHE_DIR"`

	// BaseURL overrides the report service endpoint.
	BaseURL string `yaml:"base_url" env:"FFLOG_BASE_URL"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Region:     "NA",
		Visibility: "public",
		NodePath:   "node",
	}
}

// DefaultPath is where Load looks when no explicit path is given:
// $XDG_CONFIG_HOME/fflog/config.yaml, falling back to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fflog", "config.yaml")
}

// Load builds the configuration. A missing default file is fine; a
// missing explicit file is an error, the user asked for it.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := safefile.ReadCapped(path, maxConfigBytes)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RequireCredentials rejects a configuration that cannot log in.
func (c Config) RequireCredentials() error {
	if c.Email == "" || c.Password == "" {
		return ErrCredentialsRequired
	}
	return nil
}
