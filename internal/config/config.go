package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Provider  ProviderConfig
	Budget    BudgetConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

// ProviderConfig configures the upstream LLM API. BaseURL may point at any
// OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// BudgetConfig holds per-tier monthly budgets in dollars.
type BudgetConfig struct {
	MonthlyFree    float64
	MonthlyPremium float64
}

// RateLimitConfig holds per-window ceilings by endpoint class and
// subscription tier. AI endpoints get a tighter ceiling than read
// endpoints, and premium users a higher one than free.
type RateLimitConfig struct {
	AIPerWindowFree      int
	AIPerWindowPremium   int
	ReadPerWindowFree    int
	ReadPerWindowPremium int
	Window               time.Duration
}

// LimitFor resolves the ceiling for an endpoint class and tier. Unknown
// endpoints get the tighter AI ceiling; unknown tiers get free.
func (c RateLimitConfig) LimitFor(endpoint, tier string) int {
	premium := tier == "premium"
	if endpoint == "read" {
		if premium {
			return c.ReadPerWindowPremium
		}
		return c.ReadPerWindowFree
	}
	if premium {
		return c.AIPerWindowPremium
	}
	return c.AIPerWindowFree
}

type WorkerConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxAttempts   int
	RetentionDays int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		Provider: ProviderConfig{
			APIKey:  k.String("provider.api.key"),
			BaseURL: k.String("provider.base.url"),
		},
		Budget: BudgetConfig{
			MonthlyFree:    k.Float64("budget.monthly.free"),
			MonthlyPremium: k.Float64("budget.monthly.premium"),
		},
		RateLimit: RateLimitConfig{
			AIPerWindowFree:      k.Int("ratelimit.ai.per.window.free"),
			AIPerWindowPremium:   k.Int("ratelimit.ai.per.window.premium"),
			ReadPerWindowFree:    k.Int("ratelimit.read.per.window.free"),
			ReadPerWindowPremium: k.Int("ratelimit.read.per.window.premium"),
		},
		Worker: WorkerConfig{
			BatchSize:     k.Int("worker.batch.size"),
			MaxAttempts:   k.Int("worker.max.attempts"),
			RetentionDays: k.Int("worker.retention.days"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitOrigins(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "aigateway"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "aigateway"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Budget.MonthlyFree == 0 {
		cfg.Budget.MonthlyFree = 0.10
	}
	if cfg.Budget.MonthlyPremium == 0 {
		cfg.Budget.MonthlyPremium = 2.50
	}
	if cfg.RateLimit.AIPerWindowFree == 0 {
		cfg.RateLimit.AIPerWindowFree = 10
	}
	if cfg.RateLimit.AIPerWindowPremium == 0 {
		cfg.RateLimit.AIPerWindowPremium = 30
	}
	if cfg.RateLimit.ReadPerWindowFree == 0 {
		cfg.RateLimit.ReadPerWindowFree = 120
	}
	if cfg.RateLimit.ReadPerWindowPremium == 0 {
		cfg.RateLimit.ReadPerWindowPremium = 300
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.RetentionDays == 0 {
		cfg.Worker.RetentionDays = 7
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.Provider.Timeout, err = parseDuration(k.String("provider.timeout"), "30s")
	if err != nil {
		return nil, fmt.Errorf("parsing provider timeout: %w", err)
	}
	cfg.RateLimit.Window, err = parseDuration(k.String("ratelimit.window"), "60s")
	if err != nil {
		return nil, fmt.Errorf("parsing rate limit window: %w", err)
	}
	cfg.Worker.Interval, err = parseDuration(k.String("worker.interval"), "30s")
	if err != nil {
		return nil, fmt.Errorf("parsing worker interval: %w", err)
	}

	return cfg, nil
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
