// Package config loads the ddwiki settings from YAML or JSON-with-comments
// files, overlaid with DDWIKI_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

const (
	BlobDatabase   = "database"
	BlobFilesystem = "filesystem"
	BlobS3         = "s3"
)

var errConfigInvalid = errors.New("invalid config")

type Config struct {
	// DataDir holds the sqlite database, file blobs and the process lock.
	DataDir  string        `yaml:"data_dir" json:"data_dir" validate:"required"`
	HomePage string        `yaml:"home_page" json:"home_page" validate:"required"`
	Storage  StorageConfig `yaml:"storage" json:"storage"`
	Blobs    BlobConfig    `yaml:"blobs" json:"blobs"`
	Server   ServerConfig  `yaml:"server" json:"server"`
	Search   SearchConfig  `yaml:"search" json:"search"`
	Log      LogConfig     `yaml:"log" json:"log"`
}

type StorageConfig struct {
	Engine string `yaml:"engine" json:"engine" validate:"required"`
	// DSN is passed to the engine's Connect. Empty means a sqlite file in
	// DataDir.
	DSN string `yaml:"dsn" json:"dsn"`
}

type BlobConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=database filesystem s3"`
	Dir     string `yaml:"dir" json:"dir"`
	// URL locates the bucket for the s3 backend, s3://bucket/prefix.
	URL           string `yaml:"url" json:"url" validate:"required_if=Backend s3"`
	CacheEntries  int    `yaml:"cache_entries" json:"cache_entries" validate:"gte=0"`
	CacheMaxBytes int64  `yaml:"cache_max_bytes" json:"cache_max_bytes" validate:"gte=0"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr" json:"addr" validate:"required"`
	ReadTimeout     string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes" json:"max_upload_bytes" validate:"gt=0"`
}

type SearchConfig struct {
	PageSize   int `yaml:"page_size" json:"page_size" validate:"gt=0"`
	MaxResults int `yaml:"max_results" json:"max_results" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=json console"`
}

// Default returns the settings used for everything a file leaves unset.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		HomePage: "home-page",
		Storage: StorageConfig{
			Engine: "sqlite",
		},
		Blobs: BlobConfig{
			Backend:      BlobDatabase,
			CacheEntries: 128,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "30s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "10s",
			MaxUploadBytes:  32 << 20,
		},
		Search: SearchConfig{
			PageSize:   50,
			MaxResults: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file. Files ending in .json, .jsonc or .hujson
// may contain comments and trailing commas; anything else is YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc", ".hujson":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("invalid JSONC: %w", err)
		}
		if err := json.Unmarshal(standardized, c); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"DDWIKI_DATA_DIR":       &c.DataDir,
		"DDWIKI_HOME_PAGE":      &c.HomePage,
		"DDWIKI_STORAGE_ENGINE": &c.Storage.Engine,
		"DDWIKI_STORAGE_DSN":    &c.Storage.DSN,
		"DDWIKI_BLOB_BACKEND":   &c.Blobs.Backend,
		"DDWIKI_BLOB_DIR":       &c.Blobs.Dir,
		"DDWIKI_BLOB_URL":       &c.Blobs.URL,
		"DDWIKI_ADDR":           &c.Server.Addr,
		"DDWIKI_LOG_LEVEL":      &c.Log.Level,
		"DDWIKI_LOG_FORMAT":     &c.Log.Format,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("DDWIKI_SEARCH_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DDWIKI_SEARCH_PAGE_SIZE: %w", errConfigInvalid, err)
		}
		c.Search.PageSize = n
	}
	if v := os.Getenv("DDWIKI_BLOB_CACHE_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DDWIKI_BLOB_CACHE_ENTRIES: %w", errConfigInvalid, err)
		}
		c.Blobs.CacheEntries = n
	}
	return nil
}

// Validate checks field constraints and that every duration parses.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	for name, d := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if _, err := parseDuration(d); err != nil {
			return fmt.Errorf("%w: %s: %w", errConfigInvalid, name, err)
		}
	}
	return nil
}

// StorageDSN is the connection string for the storage engine.
func (c *Config) StorageDSN() string {
	if c.Storage.DSN == "" && strings.EqualFold(c.Storage.Engine, "sqlite") {
		return filepath.Join(c.DataDir, "ddwiki.db")
	}
	return c.Storage.DSN
}

// BlobDir is where the filesystem blob backend keeps its files.
func (c *Config) BlobDir() string {
	if c.Blobs.Dir != "" {
		return c.Blobs.Dir
	}
	return filepath.Join(c.DataDir, "blobs")
}

func (s ServerConfig) Timeouts() (read, write, shutdown time.Duration) {
	read, _ = parseDuration(s.ReadTimeout)
	write, _ = parseDuration(s.WriteTimeout)
	shutdown, _ = parseDuration(s.ShutdownTimeout)
	return read, write, shutdown
}

// parseDuration accepts an empty string as zero, meaning no timeout.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// WriteYAML stores c at path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
