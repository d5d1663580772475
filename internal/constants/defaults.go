// Package constants provides shared constant values used throughout the application.
//
// The defaults.go file defines default values and limits used throughout the application.
// These constants provide fallback configuration, pagination bounds and API key
// format rules.
package constants

// Default Pagination Values define the parameters used for paginated responses.
const (
	// DefaultPage is the default page number for paginated results when not specified.
	DefaultPage = 1

	// DefaultPageSize is the default number of items per page when not specified.
	DefaultPageSize = 20

	// MaxPageSize is the maximum allowable page size.
	MaxPageSize = 100

	// MinPageSize is the minimum allowable page size.
	MinPageSize = 1
)

// Default Configuration Values define fallback settings when not specified in configuration.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8080

	// DefaultDBDriver is the database driver used when none is configured.
	DefaultDBDriver = DriverPostgres

	// DefaultDBPort is the default PostgreSQL port.
	DefaultDBPort = 5432

	// DefaultSQLitePath is the database file used by the sqlite driver when no path is set.
	DefaultSQLitePath = "./data/veil.db"

	// DefaultDBMaxConnections is the default maximum number of database connections.
	DefaultDBMaxConnections = 20

	// DefaultDBMinConnections is the default minimum number of database connections.
	DefaultDBMinConnections = 5

	// DefaultLogLevel is the default logging verbosity level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default logging output format.
	DefaultLogFormat = "json"

	// DefaultLogMaxSizeMB is the size in megabytes at which the log file is rotated.
	DefaultLogMaxSizeMB = 100

	// DefaultLogMaxBackups is the number of rotated log files kept on disk.
	DefaultLogMaxBackups = 5

	// DefaultLogMaxAgeDays is the number of days rotated log files are kept.
	DefaultLogMaxAgeDays = 28

	// DefaultMetricsPath is the path Prometheus scrapes.
	DefaultMetricsPath = "/metrics"

	// DefaultAppName is the service name reported in logs and /version.
	DefaultAppName = "veil-gateway"
)

// Environment Types define the recognized application running environments.
const (
	// EnvDevelopment identifies a development environment with debugging features enabled.
	EnvDevelopment = "development"

	// EnvTesting identifies a testing environment for automated tests.
	EnvTesting = "testing"

	// EnvProduction identifies a production environment with optimized settings.
	EnvProduction = "production"
)

// Request Limits
const (
	// MaxRequestBodySize is the maximum size in bytes for management request bodies.
	MaxRequestBodySize = 1048576 // 1MB in bytes
)

// API Key Format define the structure of issued keys: sk_<environment>_<userId>_<token>.
const (
	// APIKeyPrefix is the first segment of every key.
	APIKeyPrefix = "sk"

	// APIKeySeparator joins the key segments.
	APIKeySeparator = "_"

	// APIKeyMinParts is the minimum number of separator-delimited segments.
	APIKeyMinParts = 4

	// APIKeyEnvLive marks keys usable against production traffic.
	APIKeyEnvLive = "live"

	// APIKeyEnvTest marks sandbox keys.
	APIKeyEnvTest = "test"

	// APIKeyRandomBytes is the number of entropy bytes behind each key token.
	APIKeyRandomBytes = 32

	// APIKeyTokenLength is the length of the encoded token (RawURLEncoding of 32 bytes).
	APIKeyTokenLength = 43

	// APIKeyHintVisibleChars is how many trailing token characters a masked key shows.
	APIKeyHintVisibleChars = 4

	// APIKeyDurationFormat30Days is the string representation of a 30-day API key duration.
	APIKeyDurationFormat30Days = "30d"

	// APIKeyDurationFormat90Days is the string representation of a 90-day API key duration.
	APIKeyDurationFormat90Days = "90d"

	// APIKeyDurationFormat180Days is the string representation of a 180-day API key duration.
	APIKeyDurationFormat180Days = "180d"

	// APIKeyDurationFormat365Days is the string representation of a 365-day API key duration.
	APIKeyDurationFormat365Days = "365d"

	// APIKeyDurationFormatNever requests a key without expiry.
	APIKeyDurationFormatNever = "never"
)

// API Key Limits
const (
	// DefaultMaxActiveKeysPerSubscription caps the active keys a subscription may hold.
	DefaultMaxActiveKeysPerSubscription = 5

	// MaxKeySearchResults caps the keys returned by a name search.
	MaxKeySearchResults = 50

	// MaxBulkKeys caps the keys a single bulk operation may touch.
	MaxBulkKeys = 100

	// MaxKeyNameLength is the maximum length of a key's display name.
	MaxKeyNameLength = 100

	// MaxKeyDescriptionLength is the maximum length of a key's description.
	MaxKeyDescriptionLength = 500

	// MaxRevokeReasonLength is the maximum length of a revocation or regeneration reason.
	MaxRevokeReasonLength = 255

	// QuotaWarningRatio is the usage fraction at which a quota warning is logged.
	QuotaWarningRatio = 0.9

	// DefaultCacheMaxKeys bounds the number of validated keys kept in memory.
	DefaultCacheMaxKeys = 100000
)

// Event Queue Defaults
const (
	DefaultEventBufferSize = 1000
	DefaultEventBatchSize  = 10
	DefaultEventWorkers    = 4
	DefaultEventMaxRetries = 3
)

// Rate Limit Defaults
const (
	DefaultGatewayRPS      = 50.0
	DefaultGatewayBurst    = 100
	DefaultManagementRPS   = 20.0
	DefaultManagementBurst = 40
	DefaultValidateRPS     = 30.0
	DefaultValidateBurst   = 60
	DefaultRateLimitRPS    = 100.0
	DefaultRateLimitBurst  = 50
)

// Maintenance Schedules use robfig/cron descriptors.
const (
	DefaultCleanupSchedule    = "@every 1h"
	DefaultUsageResetSchedule = "@monthly"
)

// Auth Defaults
const (
	// DefaultJWTIssuer is the issuer claim value expected on management tokens.
	DefaultJWTIssuer = "veil-platform"

	// BearerTokenPrefix is the prefix for Authorization header bearer tokens.
	BearerTokenPrefix = "Bearer "

	// InsecureDefaultSecret is the placeholder secret rejected in production.
	InsecureDefaultSecret = "changeme"
)
