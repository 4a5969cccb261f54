package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration, empty host disables stage history
	Postgres PostgresConfig

	// Redis configuration, empty host disables the replay queue
	Redis RedisConfig

	// Docker configuration
	Docker DockerConfig

	// Kernel configuration
	Kernel KernelConfig

	// JWT configuration
	JWT JWTConfig

	// Git configuration for replays of repository Dockerfiles
	Git GitConfig

	// Logging configuration
	LogLevel string

	// Worker configuration
	WorkerConcurrency int
}

type ServerConfig struct {
	Addr           string
	Port           string
	AllowedOrigins []string
	MaxSessions    int // 0 means no limit
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Computed connection string
	DSN string
}

// Enabled reports whether stage history is configured
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Computed connection string
	Addr string
}

// Enabled reports whether the replay queue is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type DockerConfig struct {
	Host         string
	APIVersion   string
	TLSEnabled   bool
	CertPath     string
	KeyPath      string
	CAPath       string
	BuildTimeout time.Duration // zero means no deadline
}

type KernelConfig struct {
	TriggerMarker string
}

type JWTConfig struct {
	Secret     string
	Expiration int // in seconds
}

type GitConfig struct {
	CloneDir string
}

// LoadConfig loads configuration using viper with support for:
// - Environment variables
// - .env files
// - Default values
// Fails fast on invalid configs
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Try to read config file (optional - env vars take precedence)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			Port:           v.GetString("server.port"),
			AllowedOrigins: splitList(v.GetString("server.allowed_origins")),
			MaxSessions:    v.GetInt("server.max_sessions"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetInt("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Database: v.GetString("postgres.database"),
			SSLMode:  v.GetString("postgres.sslmode"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Addr:     v.GetString("redis.addr"),
		},
		Docker: DockerConfig{
			Host:         v.GetString("docker.host"),
			APIVersion:   v.GetString("docker.api_version"),
			TLSEnabled:   v.GetBool("docker.tls_enabled"),
			CertPath:     v.GetString("docker.cert_path"),
			KeyPath:      v.GetString("docker.key_path"),
			CAPath:       v.GetString("docker.ca_path"),
			BuildTimeout: time.Duration(v.GetInt("docker.build_timeout")) * time.Second,
		},
		Kernel: KernelConfig{
			TriggerMarker: v.GetString("kernel.trigger_marker"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		Git: GitConfig{
			CloneDir: v.GetString("git.clone_dir"),
		},
		LogLevel:          v.GetString("log.level"),
		WorkerConcurrency: v.GetInt("worker.concurrency"),
	}

	// Build computed connection strings
	if config.Postgres.Enabled() {
		config.Postgres.DSN = buildPostgresDSN(config.Postgres)
	}
	if config.Redis.Addr == "" && config.Redis.Host != "" {
		config.Redis.Addr = buildRedisAddr(config.Redis)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("server.max_sessions", 64)

	// Postgres defaults
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "celldock")
	v.SetDefault("postgres.sslmode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.addr", "")

	// Docker defaults, empty API version negotiates
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.api_version", "")
	v.SetDefault("docker.tls_enabled", false)
	v.SetDefault("docker.cert_path", "")
	v.SetDefault("docker.key_path", "")
	v.SetDefault("docker.ca_path", "")
	// 0 leaves builds without a deadline
	v.SetDefault("docker.build_timeout", 0)

	// Kernel defaults
	v.SetDefault("kernel.trigger_marker", "%")

	// JWT defaults
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", 86400) // 1 day

	// Git defaults
	v.SetDefault("git.clone_dir", filepath.Join(os.TempDir(), "celldock-replays"))

	// Logging defaults
	v.SetDefault("log.level", "info")

	// Worker defaults
	v.SetDefault("worker.concurrency", 4)
}

// splitList splits a comma separated setting, dropping blanks
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func buildPostgresDSN(pg PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode)
}

func buildRedisAddr(redis RedisConfig) string {
	return fmt.Sprintf("%s:%d", redis.Host, redis.Port)
}

func validateConfig(config *Config) error {
	var missing []string

	// Required: Postgres password for anything but local dev
	if config.Postgres.Enabled() && config.Postgres.Host != "localhost" && config.Postgres.Password == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	if config.Postgres.Enabled() && config.Postgres.Database == "" {
		missing = append(missing, "POSTGRES_DATABASE")
	}

	// Required: Docker host
	if config.Docker.Host == "" {
		missing = append(missing, "DOCKER_HOST")
	}

	// If TLS is enabled, require cert paths
	if config.Docker.TLSEnabled {
		if config.Docker.CertPath == "" {
			missing = append(missing, "DOCKER_CERT_PATH")
		}
		if config.Docker.KeyPath == "" {
			missing = append(missing, "DOCKER_KEY_PATH")
		}
		if config.Docker.CAPath == "" {
			missing = append(missing, "DOCKER_CA_PATH")
		}
	}

	if strings.TrimSpace(config.Kernel.TriggerMarker) == "" {
		missing = append(missing, "KERNEL_TRIGGER_MARKER")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", config.LogLevel)
	}

	return nil
}

// RequireJWT fails when no token secret is configured. The HTTP API cannot
// issue session tokens without one.
func (c *Config) RequireJWT() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("missing required configuration: JWT_SECRET")
	}
	return nil
}
