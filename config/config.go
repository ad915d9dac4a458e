// Package config loads GitDB settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/ps"
	"gopkg.in/yaml.v3"
)

// Backend names the kind of backing store.
type Backend string

const (
	BackendGitHub Backend = "github"
	BackendGit    Backend = "git"
	BackendMemory Backend = "memory"
	BackendS3     Backend = "s3"
)

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 3000
	DefaultCacheSize   = 1024
	DefaultCacheTTL    = 10 * time.Minute
	DefaultConcurrency = 8
)

// Config is the complete GitDB configuration.
type Config struct {
	Backend     Backend          `yaml:"backend"`
	Credentials core.Credentials `yaml:"credentials"`
	Identity    core.Identity    `yaml:"identity"`
	GitHub      GitHubConfig     `yaml:"github"`
	Git         GitConfig        `yaml:"git"`
	S3          ps.S3Config      `yaml:"s3"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Cache       CacheConfig      `yaml:"cache"`
	Concurrency int              `yaml:"concurrency"`
}

// GitHubConfig holds settings for the GitHub contents API backend.
type GitHubConfig struct {
	BaseURL string `yaml:"baseURL"` // GitHub Enterprise API endpoint
	Branch  string `yaml:"branch"`
}

// GitConfig holds settings for the local Git backend. When URL is set the
// repository is cloned into Dir and commits are pushed back.
type GitConfig struct {
	Dir      string `yaml:"dir"`
	URL      string `yaml:"url"`
	Remote   string `yaml:"remote"` // remote that writes are pushed to, origin when empty
	Auth     string `yaml:"auth"`   // none, token, ssh or basic
	KeyPath  string `yaml:"keyPath"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ServerConfig holds the HTTP listener and its optional JWT auth.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig sizes the document cache. A size of zero disables it.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend:  BackendGitHub,
		Identity: core.Identity{Name: "GitDB", Email: "gitdb@localhost"},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "CONSOLE",
		},
		Cache: CacheConfig{
			Size: DefaultCacheSize,
			TTL:  DefaultCacheTTL,
		},
		Concurrency: DefaultConcurrency,
	}
}

// DefaultPath returns $GITDB_CONFIG, or ~/.gitdb/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("GITDB_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gitdb", "config.yaml")
	}
	return filepath.Join(home, ".gitdb", "config.yaml")
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("GITHUB_TOKEN", &c.Credentials.Token)
	setString("GITHUB_OWNER", &c.Credentials.Owner)
	setString("GITHUB_REPO", &c.Credentials.Repo)
	setString("HOST", &c.Server.Host)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setString("GITDB_JWT_SECRET", &c.Server.JWTSecret)
	setString("GITDB_GIT_DIR", &c.Git.Dir)
	setString("GITDB_GIT_URL", &c.Git.URL)

	if v := os.Getenv("GITDB_BACKEND"); v != "" {
		c.Backend = Backend(strings.ToLower(v))
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGitHub, BackendGit, BackendMemory, BackendS3:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendGit && c.Git.Dir == "" {
		return errors.New("git backend requires git.dir")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("invalid cache size %d", c.Cache.Size)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency %d", c.Concurrency)
	}
	return nil
}

// Save writes cfg to path, readable only by the current user.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SaveCredentials stores creds in the file at path, keeping its other
// settings. Environment overrides are not written back.
func SaveCredentials(path string, creds core.Credentials) error {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Credentials = creds
	return Save(path, cfg)
}
