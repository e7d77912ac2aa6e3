// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Path string `yaml:"path"` // sqlite file
}

type DraftConfig struct {
	Backend string `yaml:"backend"` // file|redis|memory
	Dir     string `yaml:"dir"`     // file backend directory
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AIConfig struct {
	// APIKey is the credential of the OpenAI-compatible gateway. Generation
	// is a no-op while it is empty.
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	DefaultModel    string `yaml:"default_model"`
	OCRModel        string `yaml:"ocr_model"`
	DefaultProvider string `yaml:"default_provider"` // openai|gemini
	// ModelMap routes exact model names to a provider.
	ModelMap        map[string]string `yaml:"model_map"`
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	// TokenizerDir holds *.tiktoken files for the offline token estimate.
	TokenizerDir    string            `yaml:"tokenizer_dir"`
}

type UploadConfig struct {
	Dir       string `yaml:"dir"`
	PublicURL string `yaml:"public_url"` // prefix of returned image URLs
	MaxBytes  int64  `yaml:"max_bytes"`
}

type I18nConfig struct {
	Locale   string `yaml:"locale"` // en|zh|ja
	Timezone string `yaml:"timezone"`
}

type WorkerConfig struct {
	Size  int `yaml:"size"`
	Queue int `yaml:"queue"`
}

type Config struct {
	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
	Store  StoreConfig  `yaml:"store"`
	Draft  DraftConfig  `yaml:"draft"`
	Redis  RedisConfig  `yaml:"redis"`
	AI     AIConfig     `yaml:"ai"`
	Upload UploadConfig `yaml:"upload"`
	I18n   I18nConfig   `yaml:"i18n"`
	Worker WorkerConfig `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the -config and -dev flags and loads the file they name.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads and parses the config file at path. A missing file yields the
// defaults, so the app starts with no config at all.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes a YAML document, applies defaults and env overrides and
// validates the result.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	switch cfg.Draft.Backend {
	case "file", "memory":
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required for the redis draft backend")
		}
	default:
		return nil, fmt.Errorf("draft.backend: unknown backend %q", cfg.Draft.Backend)
	}
	switch cfg.AI.DefaultProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("ai.default_provider: unknown provider %q", cfg.AI.DefaultProvider)
	}
	if _, err := time.LoadLocation(cfg.I18n.Timezone); err != nil {
		return nil, fmt.Errorf("i18n.timezone: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANSWERING_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8080"
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/answers.db"
	}
	if cfg.Draft.Backend == "" {
		cfg.Draft.Backend = "file"
	}
	if cfg.Draft.Dir == "" {
		cfg.Draft.Dir = "data/draft"
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.302.ai/v1"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "chatgpt-4o-latest"
	}
	if cfg.AI.OCRModel == "" {
		cfg.AI.OCRModel = cfg.AI.DefaultModel
	}
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "openai"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "data/uploads"
	}
	if cfg.Upload.PublicURL == "" {
		cfg.Upload.PublicURL = "http://" + cfg.HTTP.Addr + "/uploads"
	}
	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = 10 << 20
	}
	if cfg.I18n.Locale == "" {
		cfg.I18n.Locale = "en"
	}
	if cfg.I18n.Timezone == "" {
		cfg.I18n.Timezone = "Local"
	}
	if cfg.Worker.Size <= 0 {
		cfg.Worker.Size = 2
	}
	if cfg.Worker.Queue <= 0 {
		cfg.Worker.Queue = 16
	}
}

// Location returns the time zone used for day grouping.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.I18n.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
