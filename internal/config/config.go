package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudvault/rategate/internal/ratelimit"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Postgres  PostgresConfig  `json:"postgres"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
	JWTSecret   string `json:"jwt_secret"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RateLimitConfig struct {
	Backend          string                      `json:"backend"` // "redis" or "memory"
	GuardLimit       int64                       `json:"guard_limit"`
	GuardTTLSeconds  int                         `json:"guard_ttl_seconds"`
	BreakerThreshold int                         `json:"breaker_threshold"`
	BreakerRecoveryS int                         `json:"breaker_recovery_seconds"`
	DefaultPolicy    string                      `json:"default_policy"`
	Policies         []ratelimit.RateLimitPolicy `json:"policies"`
	Routes           []ratelimit.PathRoute       `json:"routes"`
	LogBufferSize    int                         `json:"log_buffer_size"`
	RetentionDays    int                         `json:"retention_days"`
}

func Load(path string) (*Config, error) {
	config := defaults()

	file, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(config)

	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "rategate",
			SSLMode: "disable",
		},
		RateLimit: RateLimitConfig{
			Backend:          "redis",
			GuardLimit:       50,
			GuardTTLSeconds:  2,
			BreakerThreshold: 5,
			BreakerRecoveryS: 30,
			DefaultPolicy:    "api",
			LogBufferSize:    1000,
			RetentionDays:    30,
		},
	}
}

// Environment variables take precedence over the config file
func applyEnv(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		config.Server.Port = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		config.Server.Environment = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.Server.JWTSecret = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		config.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		config.Redis.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.Redis.DB = db
		}
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		config.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		config.Postgres.Port = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		config.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		config.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		config.Postgres.DBName = v
	}
	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		config.RateLimit.Backend = v
	}
}
