package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/ghtracker/internal/providers/github"
	"github.com/ghtracker/internal/retry"
)

// EnvPrefix is the prefix of environment overrides, GHTRACKER_CACHE_DIR sets cache.dir
const EnvPrefix = "GHTRACKER_"

// DefaultPaths are searched in order when no config file is given
var DefaultPaths = []string{"./ghtracker.toml", "$HOME/.ghtracker.toml"}

// Config represents the application configuration
type Config struct {
	GitHub    github.Config   `koanf:"github"`
	Cache     CacheConfig     `koanf:"cache"`
	Retry     retry.Policy    `koanf:"retry"`
	Logging   LoggingConfig   `koanf:"logging"`
	Templates TemplatesConfig `koanf:"templates"`

	// Path is the file the configuration was read from, empty when none was found
	Path string `koanf:"-"`
}

type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Dir        string        `koanf:"dir"`
	TTL        time.Duration `koanf:"ttl"`
	MemoryTTL  time.Duration `koanf:"memory_ttl"`
	MemorySize int           `koanf:"memory_size"`
}

type LoggingConfig struct {
	Dir           string `koanf:"dir"`
	Level         string `koanf:"level"`
	RetentionDays int    `koanf:"retention_days"`
}

type TemplatesConfig struct {
	Dir       string `koanf:"dir"`
	UsageFile string `koanf:"usage_file"`
}

func defaults() map[string]interface{} {
	gh := github.DefaultConfig()
	policy := retry.DefaultPolicy()
	return map[string]interface{}{
		"github.api_url":             gh.APIURL,
		"github.graphql_url":         gh.GraphQLURL,
		"github.token":               "",
		"github.max_connections":     gh.MaxConnections,
		"github.request_timeout":     gh.RequestTimeout,
		"github.connect_timeout":     gh.ConnectTimeout,
		"github.requests_per_second": gh.RequestsPerSecond,
		"github.capture_dir":         "",

		"cache.enabled":     true,
		"cache.dir":         ".cache",
		"cache.ttl":         24 * time.Hour,
		"cache.memory_ttl":  10 * time.Minute,
		"cache.memory_size": 256,

		"retry.max_attempts": policy.MaxAttempts,
		"retry.base_delay":   policy.BaseDelay,
		"retry.max_delay":    policy.MaxDelay,
		"retry.multiplier":   policy.Multiplier,
		"retry.jitter":       policy.Jitter,

		"logging.dir":            "logs",
		"logging.level":          "info",
		"logging.retention_days": 16,

		"templates.dir":        "templates",
		"templates.usage_file": "templates/.usage.json",
	}
}

// LoadConfig loads defaults, then the TOML file, then GHTRACKER_ environment overrides
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	loadedFrom := ""
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		loadedFrom = configPath
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				loadedFrom = path
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	config.Path = loadedFrom

	return &config, nil
}

// envKey maps GHTRACKER_GITHUB_MAX_CONNECTIONS to github.max_connections. Only the
// first separator denotes nesting since keys themselves contain underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

const sampleConfig = `# ghtracker configuration

[github]
# token = "ghp_..."   # or set GITHUB_TOKEN / use 'gh auth login'
api_url = "https://api.github.com"
graphql_url = "https://api.github.com/graphql"
max_connections = 10
request_timeout = "300s"
connect_timeout = "30s"
requests_per_second = 10
# capture_dir = "captures"   # record raw API responses for debugging

[cache]
enabled = true
dir = ".cache"
ttl = "24h"
memory_ttl = "10m"
memory_size = 256

[retry]
max_attempts = 3
base_delay = "1s"
max_delay = "30s"
multiplier = 2.0

[logging]
dir = "logs"
level = "info"
retention_days = 16

[templates]
dir = "templates"
usage_file = "templates/.usage.json"
`

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	var errs []error

	for name, raw := range map[string]string{"github.api_url": config.GitHub.APIURL, "github.graphql_url": config.GitHub.GraphQLURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, raw))
		}
	}
	if config.GitHub.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("github.max_connections must be at least 1"))
	}
	if config.GitHub.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("github.request_timeout must be positive"))
	}
	if config.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("github.requests_per_second must not be negative"))
	}

	if config.Cache.Dir == "" {
		errs = append(errs, fmt.Errorf("cache.dir is required"))
	}
	if config.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}

	if config.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1"))
	}
	if config.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier must be at least 1"))
	}
	if config.Retry.BaseDelay < 0 || config.Retry.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delays must not be negative"))
	}

	if _, err := zerolog.ParseLevel(config.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if config.Logging.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("logging.retention_days must not be negative"))
	}

	if config.Templates.Dir == "" {
		errs = append(errs, fmt.Errorf("templates.dir is required"))
	}

	return errors.Join(errs...)
}
