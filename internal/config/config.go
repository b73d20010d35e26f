package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port              int    `env:"PORT" envDefault:"8080"`
	DatabaseURL       string `env:"DATABASE_URL,required"`
	RedisURL          string `env:"REDIS_URL,required"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	StaticDir         string `env:"STATIC_DIR"`

	// AllowedOrigins limits browser WebSocket upgrades. Empty allows same-host only.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	RoundTickSeconds            int `env:"ROUND_TICK_SECONDS" envDefault:"3"`
	FinalizeTickSeconds         int `env:"FINALIZE_TICK_SECONDS" envDefault:"5"`
	NPCGenerationTimeoutSeconds int `env:"NPC_GENERATION_TIMEOUT_SECONDS" envDefault:"30"`
	ChatRateLimitPerMin         int `env:"CHAT_RATE_LIMIT_PER_MIN" envDefault:"20"`
	JoinRateLimitPerMin         int `env:"JOIN_RATE_LIMIT_PER_MIN" envDefault:"30"`
	PendingRoomTTLHours         int `env:"PENDING_ROOM_TTL_HOURS" envDefault:"24"`

	DefaultRoundLength int `env:"DEFAULT_ROUND_LENGTH" envDefault:"60"`
	DefaultRoundCount  int `env:"DEFAULT_ROUND_COUNT" envDefault:"5"`
	DefaultGuessTimer  int `env:"DEFAULT_GUESS_TIMER" envDefault:"120"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RoundTick() time.Duration {
	return time.Duration(c.RoundTickSeconds) * time.Second
}

func (c *Config) FinalizeTick() time.Duration {
	return time.Duration(c.FinalizeTickSeconds) * time.Second
}

func (c *Config) NPCGenerationTimeout() time.Duration {
	return time.Duration(c.NPCGenerationTimeoutSeconds) * time.Second
}

func (c *Config) PendingRoomTTL() time.Duration {
	return time.Duration(c.PendingRoomTTLHours) * time.Hour
}

// OriginAllowed reports whether a WebSocket upgrade from origin may proceed
// for a request addressed to host.
func (c *Config) OriginAllowed(origin, host string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, host) {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.RoundTickSeconds <= 0 || c.FinalizeTickSeconds <= 0 {
		return fmt.Errorf("ROUND_TICK_SECONDS and FINALIZE_TICK_SECONDS must be positive")
	}
	if c.DefaultRoundLength < MinRoundLength || c.DefaultRoundLength > MaxRoundLength {
		return fmt.Errorf("DEFAULT_ROUND_LENGTH must be between %d and %d", MinRoundLength, MaxRoundLength)
	}
	if c.DefaultRoundCount < MinRoundCount || c.DefaultRoundCount > MaxRoundCount {
		return fmt.Errorf("DEFAULT_ROUND_COUNT must be between %d and %d", MinRoundCount, MaxRoundCount)
	}
	if c.DefaultGuessTimer < MinGuessTimer || c.DefaultGuessTimer > MaxGuessTimer {
		return fmt.Errorf("DEFAULT_GUESS_TIMER must be between %d and %d", MinGuessTimer, MaxGuessTimer)
	}

	if c.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is empty: NPC participants will stay silent")
	}

	if isProduction {
		if c.AdminPasswordHash == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is empty in production: admin content API disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
