// Package config resolves settings from defaults, an optional
// conkydocs.yaml file, CONKYDOCS_* environment variables and a .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/search"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultDocsDir       = "doc"
	DefaultBaseURL       = "https://conky.cc"
	DefaultSourceURL     = "https://raw.githubusercontent.com/brndnmtthws/conky/main/doc"
	DefaultIndexPath     = "web/public/static/search-index.json"
	DefaultMaxResults    = 20
	DefaultListenAddress = ":8080"
	DefaultRateLimit     = 20.0
	DefaultBurst         = 40

	envPrefix = "CONKYDOCS"
)

// Config holds every setting of the docs search tools
type Config struct {
	Docs   DocsConfig   `mapstructure:"docs"`
	Index  IndexConfig  `mapstructure:"index"`
	Search SearchConfig `mapstructure:"search"`
	Server ServerConfig `mapstructure:"server"`
	Data   DataConfig   `mapstructure:"data"`
}

type DocsConfig struct {
	Dir       string `mapstructure:"dir"`
	BaseURL   string `mapstructure:"base_url"`
	SourceURL string `mapstructure:"source_url"` // where refreshes download the YAML sources from
}

type IndexConfig struct {
	Path           string `mapstructure:"path"`
	MaxDescription int    `mapstructure:"max_description"`
}

type SearchConfig struct {
	Threshold  float64 `mapstructure:"threshold"`
	MaxResults int     `mapstructure:"max_results"`
}

type ServerConfig struct {
	Listen    string  `mapstructure:"listen"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second on /api, 0 disables
	Burst     int     `mapstructure:"burst"`
}

type DataConfig struct {
	Dir string `mapstructure:"dir"` // empty means ~/.conkydocs
}

// SetViperDefaults registers every default on v
func SetViperDefaults(v *viper.Viper) {
	v.SetDefault("docs.dir", DefaultDocsDir)
	v.SetDefault("docs.base_url", DefaultBaseURL)
	v.SetDefault("docs.source_url", DefaultSourceURL)

	v.SetDefault("index.path", DefaultIndexPath)
	v.SetDefault("index.max_description", indexing.MaxDescriptionChars)

	v.SetDefault("search.threshold", search.DefaultThreshold)
	v.SetDefault("search.max_results", DefaultMaxResults)

	v.SetDefault("server.listen", DefaultListenAddress)
	v.SetDefault("server.rate_limit", DefaultRateLimit)
	v.SetDefault("server.burst", DefaultBurst)

	v.SetDefault("data.dir", "")
}

// New returns a viper instance with defaults, config file lookup and
// environment binding set up
func New() *viper.Viper {
	v := viper.New()
	SetViperDefaults(v)

	v.SetConfigName("conkydocs")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.conkydocs")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds command-line flags to config keys (key -> flag name)
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q for %s", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// LoadDotEnv loads .env into the process environment if present
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		log.Printf("✓ Loaded environment from %s", p)
	}
	return nil
}

// Load reads the config file (if any) and decodes v into a Config
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Printf("✓ Config file: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can work with
func (c *Config) Validate() error {
	if c.Search.Threshold <= 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be in (0, 1], got %v", c.Search.Threshold)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Index.Path == "" {
		return errors.New("index.path must not be empty")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %v", c.Server.RateLimit)
	}
	return nil
}

// BuildOptions returns the index build options
func (c *Config) BuildOptions() indexing.BuildOptions {
	return indexing.BuildOptions{MaxDescription: c.Index.MaxDescription}
}

// SearchOptions returns the query engine options
func (c *Config) SearchOptions() search.Options {
	return search.Options{Threshold: c.Search.Threshold}
}
