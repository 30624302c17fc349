// Package config provides YAML-based configuration for the PatternGuard console.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/patternguard/console/internal/models"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root of the configuration file.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Files   FilesConfig   `yaml:"files"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig points at the backend.
type ServerConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SessionConfig locates the persisted profile holding the bearer token.
type SessionConfig struct {
	ProfilePath string `yaml:"profile_path"`
}

// StorageConfig controls where downloads and exports are written.
type StorageConfig struct {
	DownloadDirectory string `yaml:"download_dir"`
}

// FilesConfig holds extension build settings.
type FilesConfig struct {
	Platforms           []string `yaml:"platforms"`
	VersionCacheSeconds int      `yaml:"version_cache_seconds"`
}

// LoggingConfig controls diagnostics output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	platforms := make([]string, len(models.DefaultPlatforms))
	for i, p := range models.DefaultPlatforms {
		platforms[i] = string(p)
	}

	return &AppConfig{
		Server: ServerConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 60,
		},
		Session: SessionConfig{
			ProfilePath: "./profile/session.msgpack",
		},
		Storage: StorageConfig{
			DownloadDirectory: "./downloads",
		},
		Files: FilesConfig{
			Platforms:           platforms,
			VersionCacheSeconds: 300,
		},
		Logging: LoggingConfig{
			Level: "warn",
			File:  "./logs/pgadmin.log",
			JSON:  false,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first when the file does not exist. A .env file in the working
// directory, if any, is loaded before environment overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	var config *AppConfig
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config = DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		config = DefaultConfig()
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# PatternGuard console configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the client cannot work with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return fmt.Errorf("server.base_url must not be empty")
	}
	if len(c.Files.Platforms) == 0 {
		return fmt.Errorf("files.platforms must list at least one platform")
	}
	if c.Server.TimeoutSeconds < 0 || c.Files.VersionCacheSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if baseURL := os.Getenv("PGADMIN_API_BASE_URL"); baseURL != "" {
		c.Server.BaseURL = baseURL
	}

	if profile := os.Getenv("PGADMIN_PROFILE"); profile != "" {
		c.Session.ProfilePath = profile
	}

	if dir := os.Getenv("PGADMIN_DOWNLOAD_DIR"); dir != "" {
		c.Storage.DownloadDirectory = dir
	}

	if level := os.Getenv("PGADMIN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if file, ok := os.LookupEnv("PGADMIN_LOG_FILE"); ok {
		c.Logging.File = file
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	c.Session.ProfilePath = resolve(configDir, c.Session.ProfilePath)
	c.Storage.DownloadDirectory = resolve(configDir, c.Storage.DownloadDirectory)
	if c.Logging.File != "" {
		c.Logging.File = resolve(configDir, c.Logging.File)
	}
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// BaseURL returns the backend URL without a trailing slash.
func (c *AppConfig) BaseURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/")
}

// Timeout returns the per-request timeout.
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// VersionCacheTTL returns how long public version lists are reused.
func (c *AppConfig) VersionCacheTTL() time.Duration {
	return time.Duration(c.Files.VersionCacheSeconds) * time.Second
}

// Platforms returns the configured platform set.
func (c *AppConfig) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(c.Files.Platforms))
	for _, p := range c.Files.Platforms {
		out = append(out, models.Platform(strings.ToLower(strings.TrimSpace(p))))
	}
	return out
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	// The profile holds the bearer token.
	if err := os.MkdirAll(filepath.Dir(c.Session.ProfilePath), 0700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	dirs := []string{c.Storage.DownloadDirectory}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
