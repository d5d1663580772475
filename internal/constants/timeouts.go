package constants

import "time"

// Server Timeouts
const (
	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
)

// Database Timeouts
const (
	DBConnectionTimeout  = 30 * time.Second
	DBQueryTimeout       = 15 * time.Second
	DBHealthCheckTimeout = 5 * time.Second
	DBConnMaxLifetime    = 1 * time.Hour
	DBConnMaxIdleTime    = 30 * time.Minute
	MaintenanceTimeout   = 5 * time.Minute
)

// Authentication Timeouts
const (
	DefaultJWTExpiry      = 15 * time.Minute
	DefaultAPIKeyExpiry   = 90 * 24 * time.Hour // 90 days
	APIKeyDuration30Days  = 30 * 24 * time.Hour
	APIKeyDuration90Days  = 90 * 24 * time.Hour
	APIKeyDuration180Days = 180 * 24 * time.Hour
	APIKeyDuration365Days = 365 * 24 * time.Hour
	ExpiredKeyGracePeriod = 30 * 24 * time.Hour
)

// API Key Cache
const (
	DefaultKeyCacheTTL = 5 * time.Minute
)

// Gateway
const (
	DefaultUpstreamTimeout  = 30 * time.Second
	StatsUpdateTimeout      = 5 * time.Second
	APISnapshotTTL          = 30 * time.Second
	DefaultRateLimitCleanup = 10 * time.Minute
)

// Event Queue
const (
	DefaultEventFlushInterval = 5 * time.Second
	EventHTTPClientTimeout    = 30 * time.Second
	EventRetryMinBackoff      = 200 * time.Millisecond
	EventRetryMaxBackoff      = 5 * time.Second
)
