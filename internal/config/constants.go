package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 15 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 60

// Room settings bounds, in seconds for lengths and timers
const (
	MinRoundLength = 10
	MaxRoundLength = 600
	MinRoundCount  = 1
	MaxRoundCount  = 20
	MinGuessTimer  = 10
	MaxGuessTimer  = 600
)

// Realtime stream settings
const (
	StreamHeartbeatInterval = 30 * time.Second
	WSWriteTimeout          = 10 * time.Second
	WSPongTimeout           = 60 * time.Second
	WSMaxMessageBytes       = 4096
)
