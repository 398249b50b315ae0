package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port         string        `mapstructure:"PORT"`
	Env          string        `mapstructure:"ENV"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
	ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	CORSOrigins  []string      `mapstructure:"CORS_ORIGINS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL        string        `mapstructure:"REDIS_URL"`
	ProfileCacheTTL time.Duration `mapstructure:"PROFILE_CACHE_TTL"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	WS     WebSocketConfig `mapstructure:",squash"`
	Typing TypingConfig    `mapstructure:",squash"`
}

type WebSocketConfig struct {
	SendBuffer     int           `mapstructure:"WS_SEND_BUFFER"`
	WriteWait      time.Duration `mapstructure:"WS_WRITE_WAIT"`
	PongWait       time.Duration `mapstructure:"WS_PONG_WAIT"`
	PingPeriod     time.Duration `mapstructure:"WS_PING_PERIOD"`
	MaxMessageSize int64         `mapstructure:"WS_MAX_MESSAGE_SIZE"`
}

type TypingConfig struct {
	// IdleTimeout of zero disables expiry; senders must send StopTyping.
	IdleTimeout time.Duration `mapstructure:"TYPING_IDLE_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "READ_TIMEOUT", "WRITE_TIMEOUT", "CORS_ORIGINS",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "PROFILE_CACHE_TTL", "JWT_SECRET",
	"WS_SEND_BUFFER", "WS_WRITE_WAIT", "WS_PONG_WAIT", "WS_PING_PERIOD", "WS_MAX_MESSAGE_SIZE",
	"TYPING_IDLE_TIMEOUT",
}

func Load() (*Config, error) {
	// A missing .env file is fine; the real environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("READ_TIMEOUT", "15s")
	v.SetDefault("WRITE_TIMEOUT", "15s")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("PROFILE_CACHE_TTL", "5m")
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("WS_WRITE_WAIT", "10s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_PING_PERIOD", "54s")
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 65536)
	v.SetDefault("TYPING_IDLE_TIMEOUT", "0s")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated lists arrive as a single string from the environment.
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// both a database and a JWT secret are mandatory.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ENV=%q", c.Env)
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WS.SendBuffer)
	}
	if c.WS.PingPeriod >= c.WS.PongWait {
		return fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", c.WS.PingPeriod, c.WS.PongWait)
	}
	if c.Typing.IdleTimeout < 0 {
		return fmt.Errorf("TYPING_IDLE_TIMEOUT must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
