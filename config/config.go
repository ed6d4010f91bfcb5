package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvRedisURL  = "SUPPLYVERIFY_REDIS_URL"
	EnvJWTSecret = "SUPPLYVERIFY_JWT_SECRET"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Registry RegistryConfig `yaml:"registry"`
	Batch    BatchConfig    `yaml:"batch"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimit       int           `yaml:"rate_limit"`        // requests per client per rate_window
	RateWindow      time.Duration `yaml:"rate_window"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RegistryConfig describes where and how registry pages are loaded.
type RegistryConfig struct {
	BaseURL           string        `yaml:"base_url"`
	IDParam           string        `yaml:"id_param"`
	Renderer          string        `yaml:"renderer"` // browser or http
	UserAgent         string        `yaml:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `yaml:"element_timeout"`
	ScopeTimeout      time.Duration `yaml:"scope_timeout"`
	Headless          *bool         `yaml:"headless"`
	BrowserBin        string        `yaml:"browser_bin"`
	DebuggerURL       string        `yaml:"debugger_url"`
}

// IsHeadless defaults to true when unset.
func (r RegistryConfig) IsHeadless() bool {
	return r.Headless == nil || *r.Headless
}

type BatchConfig struct {
	WindowSize int `yaml:"window_size"`
}

type StoreConfig struct {
	Backend            string        `yaml:"backend"` // memory or redis
	CompletedRetention time.Duration `yaml:"completed_retention"`
	ErrorRetention     time.Duration `yaml:"error_retention"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	MaxSessions        int           `yaml:"max_sessions"`
	RedisURL           string        `yaml:"redis_url"`
	KeyPrefix          string        `yaml:"key_prefix"`
	MaxLifetime        time.Duration `yaml:"max_lifetime"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// Enabled reports whether the API requires bearer tokens.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.Auth.JWTSecret = v
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = time.Minute
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 10
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Registry.BaseURL == "" {
		c.Registry.BaseURL = "https://organic.ams.usda.gov/Integrity/CP/OPP"
	}
	if c.Registry.IDParam == "" {
		c.Registry.IDParam = "nopid"
	}
	if c.Registry.Renderer == "" {
		c.Registry.Renderer = "browser"
	}
	if c.Registry.NavigationTimeout == 0 {
		c.Registry.NavigationTimeout = 30 * time.Second
	}
	if c.Registry.ElementTimeout == 0 {
		c.Registry.ElementTimeout = 10 * time.Second
	}
	if c.Registry.ScopeTimeout == 0 {
		c.Registry.ScopeTimeout = 15 * time.Second
	}
	if c.Batch.WindowSize == 0 {
		c.Batch.WindowSize = 5
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.CompletedRetention == 0 {
		c.Store.CompletedRetention = 5 * time.Minute
	}
	if c.Store.ErrorRetention == 0 {
		c.Store.ErrorRetention = time.Minute
	}
	if c.Store.SweepInterval == 0 {
		c.Store.SweepInterval = 30 * time.Second
	}
	if c.Store.MaxSessions == 0 {
		c.Store.MaxSessions = 1000
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "supplyverify:session:"
	}
	if c.Store.MaxLifetime == 0 {
		c.Store.MaxLifetime = 6 * time.Hour
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
}

func (c *Config) validate() error {
	switch c.Registry.Renderer {
	case "browser", "http":
	default:
		return fmt.Errorf("registry.renderer must be browser or http, got %q", c.Registry.Renderer)
	}
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url (or %s) is required for the redis backend", EnvRedisURL)
		}
	default:
		return fmt.Errorf("store.backend must be memory or redis, got %q", c.Store.Backend)
	}
	if c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store.sweep_interval must be positive, got %s", c.Store.SweepInterval)
	}
	if c.Store.CompletedRetention < 0 || c.Store.ErrorRetention < 0 {
		return fmt.Errorf("store retention must not be negative, got completed=%s error=%s",
			c.Store.CompletedRetention, c.Store.ErrorRetention)
	}
	if c.Store.MaxLifetime < 0 {
		return fmt.Errorf("store.max_lifetime must not be negative, got %s", c.Store.MaxLifetime)
	}
	if c.Batch.WindowSize < 0 {
		return fmt.Errorf("batch.window_size must be positive, got %d", c.Batch.WindowSize)
	}
	return nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
