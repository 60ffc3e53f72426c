// Package config handles MuninDB configuration.
//
// Configuration is loaded in three layers: built-in defaults, an
// optional YAML file, then MUNINDB_-prefixed environment variables.
// Later layers win.
//
// Example:
//
//	cfg := config.Default()
//	if err := cfg.LoadFile("munindb.yaml"); err != nil { ... }
//	cfg.LoadFromEnv()
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all MuninDB configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Import settings
	Import ImportConfig `yaml:"import"`

	// Auth settings for the HTTP API
	Auth AuthConfig `yaml:"auth"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	EnableCORS   bool          `yaml:"enable_cors"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// StorageConfig selects the graph backend.
type StorageConfig struct {
	// DataDir is the artifact directory produced by an import.
	DataDir string `yaml:"data_dir"`
	// BlockMode serves adjacency from the block store instead of the
	// flat memory-mapped CSR.
	BlockMode bool `yaml:"block_mode"`
	// CacheBytes bounds the hot block cache.
	CacheBytes uint64 `yaml:"cache_bytes"`
}

// ImportConfig holds importer settings.
type ImportConfig struct {
	// SortAdjacency orders adjacency slices by destination id.
	SortAdjacency bool `yaml:"sort_adjacency"`
	// MaxMemBytes is the import memory watermark. 0 disables it.
	MaxMemBytes uint64 `yaml:"max_mem_bytes"`
	// BlockWidth is the nodes-per-block partition width in block mode.
	BlockWidth uint32 `yaml:"block_width"`
}

// AuthConfig holds HTTP API authentication settings.
type AuthConfig struct {
	// Enabled turns on bearer-token checks for query endpoints.
	Enabled bool `yaml:"enabled"`
	// Password is exchanged for a session token at /token.
	Password string `yaml:"password"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			EnableCORS:   true,
			CORSOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			CacheBytes: 1 << 30,
		},
		Import: ImportConfig{
			SortAdjacency: true,
			BlockWidth:    65536,
		},
		LogLevel: "info",
	}
}

// LoadFile overlays settings from a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays settings from MUNINDB_* environment variables.
func (c *Config) LoadFromEnv() {
	envString("MUNINDB_ADDRESS", &c.Server.Address)
	envInt("MUNINDB_PORT", &c.Server.Port)
	envBool("MUNINDB_ENABLE_CORS", &c.Server.EnableCORS)
	envStrings("MUNINDB_CORS_ORIGINS", &c.Server.CORSOrigins)
	envString("MUNINDB_DATA_DIR", &c.Storage.DataDir)
	envBool("MUNINDB_BLOCK_MODE", &c.Storage.BlockMode)
	envUint64("MUNINDB_CACHE_BYTES", &c.Storage.CacheBytes)
	envBool("MUNINDB_SORT_ADJACENCY", &c.Import.SortAdjacency)
	envUint64("MUNINDB_MAX_IMPORT_MEM", &c.Import.MaxMemBytes)
	envBool("MUNINDB_AUTH_ENABLED", &c.Auth.Enabled)
	envString("MUNINDB_AUTH_PASSWORD", &c.Auth.Password)
	envString("MUNINDB_LOG_LEVEL", &c.LogLevel)
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("config: data_dir must be set")
	}
	if c.Auth.Enabled && c.Auth.Password == "" {
		return fmt.Errorf("config: auth enabled but no password set")
	}
	if c.Import.BlockWidth == 0 {
		return fmt.Errorf("config: block_width must be positive")
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envUint64(key string, dst *uint64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envStrings(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}
