package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends selectable with LEDGER_BACKEND.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Poll     PollConfig
	Voter    VoterConfig
	Admin    AdminConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	PublicBaseURL      string // used to build the share link
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/livepoll?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PollConfig describes the single poll served by this instance.
type PollConfig struct {
	ID               string
	Question         string
	Options          []string
	Duration         time.Duration
	TickInterval     time.Duration
	Simulate         bool
	SimulateInterval time.Duration
	LedgerBackend    string
}

// VoterConfig holds anonymous voter token settings.
type VoterConfig struct {
	Secret       string
	TokenTTL     time.Duration
	SecureCookie bool
}

// AdminConfig holds the shared administrator key. Empty disables admin routes.
type AdminConfig struct {
	Key string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ShareURL returns the public link to the poll, or "" when no base URL is configured.
func (c Config) ShareURL() string {
	if c.Server.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + "/polls/" + c.Poll.ID
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "livepoll"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Poll: PollConfig{
			ID:               getEnv("POLL_ID", "poll1"),
			Question:         getEnv("POLL_QUESTION", "Which JavaScript framework do you prefer in 2023?"),
			Options:          splitTrim(getEnv("POLL_OPTIONS", "React,Vue,Angular,Svelte,None of the above"), ","),
			Duration:         getEnvDuration("POLL_DURATION", 24*time.Hour),
			TickInterval:     getEnvDuration("POLL_TICK_INTERVAL", time.Second),
			Simulate:         getEnvBool("SIMULATE_VOTES", false),
			SimulateInterval: getEnvDuration("SIMULATE_INTERVAL", 3*time.Second),
			LedgerBackend:    strings.ToLower(getEnv("LEDGER_BACKEND", LedgerMemory)),
		},
		Voter: VoterConfig{
			Secret:       getEnv("VOTER_TOKEN_SECRET", "change-me-in-production"),
			TokenTTL:     getEnvDuration("VOTER_TOKEN_TTL", 30*24*time.Hour),
			SecureCookie: getEnvBool("VOTER_SECURE_COOKIE", false),
		},
		Admin: AdminConfig{
			Key: getEnv("ADMIN_KEY", ""),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Poll.LedgerBackend {
	case LedgerMemory, LedgerPostgres:
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("LEDGER_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Poll.LedgerBackend)
	}
	if len(c.Poll.Options) < 2 {
		return fmt.Errorf("POLL_OPTIONS needs at least 2 options, got %d", len(c.Poll.Options))
	}
	if c.Poll.Duration <= 0 {
		return fmt.Errorf("POLL_DURATION must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
