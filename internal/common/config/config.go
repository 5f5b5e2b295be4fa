// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Rendering RenderingConfig `yaml:"rendering"`
	Auth      AuthConfig      `yaml:"auth"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
}

// NATSConfig configures the notification transport. An empty URL disables
// notification delivery.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RenderingConfig points at the document rendering service. An empty URL
// disables rendering.
type RenderingConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// LedgerConfig selects the credit-line commitment policy.
type LedgerConfig struct {
	CapCommitments bool `yaml:"cap_commitments"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "be-ap-procurement",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:            8086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		GRPC: GRPCConfig{Port: 9086, Reflection: true},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "procurement",
			SSLMode:     "disable",
			MaxConns:    10,
			MinConns:    2,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
			HealthCheck: time.Minute,
		},
		NATS:      NATSConfig{SubjectPrefix: "notifications.procurement"},
		Rendering: RenderingConfig{Timeout: 10 * time.Second},
		RateLimit: RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted; a missing file is only an error when explicitly named.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
		explicit = path != ""
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		case explicit:
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would make the service unusable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.GRPC.Port <= 0 {
		return fmt.Errorf("server and grpc ports must be positive")
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Auth.JWTSecret == "" && c.Service.Environment != "development" {
		return fmt.Errorf("auth.jwt_secret is required outside development")
	}
	return nil
}

// DSN renders the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func applyEnv(cfg *Config) {
	setString(&cfg.Service.Environment, "ENVIRONMENT")
	setString(&cfg.Service.LogLevel, "LOG_LEVEL")

	setInt(&cfg.Server.Port, "HTTP_PORT")
	setInt(&cfg.GRPC.Port, "GRPC_PORT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}

	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Database, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Rendering.URL, "RENDERING_URL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.Issuer, "JWT_ISSUER")

	if v := os.Getenv("LEDGER_CAP_COMMITMENTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ledger.CapCommitments = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
