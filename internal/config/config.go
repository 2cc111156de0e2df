// Package config loads client and dev-server configuration.  Values come from
// built-in defaults, then an optional YAML profile, then environment
// variables (a .env file in the working directory is loaded first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/league-client/internal/notification"
)

// Credential store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the client configuration.
type Config struct {
	Env               string        `yaml:"env"`
	APIBaseURL        string        `yaml:"api_base_url"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	InvalidateTimeout time.Duration `yaml:"invalidate_timeout"`

	AMQPURL      string        `yaml:"amqp_url"`
	AMQPExchange string        `yaml:"amqp_exchange"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`

	CredentialBackend string      `yaml:"credential_backend"` // file | redis | sqlite | memory
	CredentialPath    string      `yaml:"credential_path"`    // file or sqlite path
	Redis             RedisConfig `yaml:"redis"`

	NotificationCapacity int `yaml:"notification_capacity"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the built-in client configuration.
func Defaults() Config {
	return Config{
		Env:                  "dev",
		APIBaseURL:           "http://localhost:8080",
		HTTPTimeout:          10 * time.Second,
		InvalidateTimeout:    10 * time.Second,
		AMQPURL:              "amqp://localhost:5672/",
		AMQPExchange:         "league.events",
		ReconnectMin:         time.Second,
		ReconnectMax:         30 * time.Second,
		CredentialBackend:    BackendFile,
		Redis:                defaultRedis(),
		NotificationCapacity: notification.DefaultCapacity,
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// Load builds the client configuration.  profile is an optional YAML file;
// when empty, LEAGUE_CONFIG is consulted.  A missing .env is not an error.
func Load(profile string) (Config, error) {
	loadDotEnv()

	cfg := Defaults()
	if profile == "" {
		profile = os.Getenv("LEAGUE_CONFIG")
	}
	if profile != "" {
		if err := readYAML(profile, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.APIBaseURL = getenv("LEAGUE_API_URL", cfg.APIBaseURL)
	cfg.HTTPTimeout = envDur("LEAGUE_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.InvalidateTimeout = envDur("LEAGUE_INVALIDATE_TIMEOUT", cfg.InvalidateTimeout)
	// RABBITMQ_URL first, AMQP_URL as fallback
	cfg.AMQPURL = getenv("RABBITMQ_URL", getenv("AMQP_URL", cfg.AMQPURL))
	cfg.AMQPExchange = getenv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.ReconnectMin = envDur("LEAGUE_RECONNECT_MIN", cfg.ReconnectMin)
	cfg.ReconnectMax = envDur("LEAGUE_RECONNECT_MAX", cfg.ReconnectMax)
	cfg.CredentialBackend = strings.ToLower(getenv("LEAGUE_CREDENTIAL_BACKEND", cfg.CredentialBackend))
	cfg.CredentialPath = getenv("LEAGUE_CREDENTIAL_PATH", cfg.CredentialPath)
	cfg.Redis = cfg.Redis.fromEnv()
	cfg.NotificationCapacity = envInt("LEAGUE_NOTIFICATION_CAPACITY", cfg.NotificationCapacity)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings Load cannot default.
func (c Config) Validate() error {
	if err := must("LEAGUE_API_URL", c.APIBaseURL); err != nil {
		return err
	}
	if err := must("RABBITMQ_URL", c.AMQPURL); err != nil {
		return err
	}
	switch c.CredentialBackend {
	case BackendFile, BackendRedis, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown credential backend %q", c.CredentialBackend)
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("invalid reconnect backoff %s..%s", c.ReconnectMin, c.ReconnectMax)
	}
	if c.NotificationCapacity < 1 || c.NotificationCapacity > notification.DefaultCapacity {
		return fmt.Errorf("invalid LEAGUE_NOTIFICATION_CAPACITY %d: must be 1..%d",
			c.NotificationCapacity, notification.DefaultCapacity)
	}
	return nil
}

func loadDotEnv() {
	// Overload is not used: real env vars win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring .env: %v\n", err)
	}
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return nil
}
