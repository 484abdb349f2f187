package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TASKCOLLAB"

// Config is the client configuration shared by every command.
type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	SocketURL      string        `mapstructure:"socket_url"`
	DBPath         string        `mapstructure:"db_path"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	LogLevel       string        `mapstructure:"log_level"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("api_base_url", "http://localhost:5000/api")
	v.SetDefault("socket_url", "http://localhost:5000")
	v.SetDefault("db_path", "./taskcollab.db")
	v.SetDefault("listen_addr", "127.0.0.1:3001")
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log_level", "info")
}

// Load reads, in increasing precedence: built-in defaults, the YAML file at
// path (if non-empty), a .env file in the working directory (if present) and
// TASKCOLLAB_* environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
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

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"api_base_url": c.APIBaseURL, "socket_url": c.SocketURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// ValidateBridge checks the settings of the local bridge. The bridge acts
// with the signed-in session, so it only answers explicitly listed browser
// origins: wildcards are refused.
func (c *Config) ValidateBridge() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("allowed_origins must list at least one origin")
	}
	for _, o := range c.AllowedOrigins {
		if strings.Contains(o, "*") {
			return fmt.Errorf("allowed_origins must not contain wildcards, got %q", o)
		}
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("invalid allowed origin %q", o)
		}
	}
	return nil
}

// Level maps LogLevel onto slog; unknown values fall back to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
