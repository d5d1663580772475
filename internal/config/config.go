package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/try-veil/veil-gateway/internal/constants"
)

// AppConfig represents the entire application configuration
type AppConfig struct {
	App         AppSettings         `yaml:"app"`
	Database    DatabaseSettings    `yaml:"database"`
	Server      ServerSettings      `yaml:"server"`
	JWT         JWTSettings         `yaml:"jwt"`
	APIKey      APIKeySettings      `yaml:"api_key"`
	Gateway     GatewaySettings     `yaml:"gateway"`
	RateLimit   RateLimitSettings   `yaml:"rate_limit"`
	Events      EventSettings       `yaml:"events"`
	Maintenance MaintenanceSettings `yaml:"maintenance"`
	Metrics     MetricsSettings     `yaml:"metrics"`
	Logging     LoggingSettings     `yaml:"logging"`
	CORS        CORSSettings        `yaml:"cors"`
}

// AppSettings contains general application settings
type AppSettings struct {
	Environment string `yaml:"environment" env:"APP_ENV"`
	Name        string `yaml:"name" env:"APP_NAME"`
	Version     string `yaml:"version" env:"APP_VERSION"`
}

// DatabaseSettings contains database connection settings.
// Driver selects postgres, mysql or sqlite; Path is only used by sqlite.
type DatabaseSettings struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Name     string `yaml:"name" env:"DB_NAME"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Path     string `yaml:"path" env:"DB_PATH"`
	SSL      bool   `yaml:"ssl" env:"DB_SSL"`
	MaxConns int    `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"DB_MIN_CONNS"`
}

// ServerSettings contains HTTP server settings
type ServerSettings struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// JWTSettings contains the settings used to verify management tokens issued by the platform
type JWTSettings struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET"`
	Expiry time.Duration `yaml:"expiry" env:"JWT_EXPIRY"`
	Issuer string        `yaml:"issuer" env:"JWT_ISSUER"`
}

// APIKeySettings contains API key issuance and validation settings
type APIKeySettings struct {
	Environment              string        `yaml:"environment" env:"API_KEY_ENVIRONMENT"`
	Pepper                   string        `yaml:"pepper" env:"API_KEY_PEPPER"`
	DefaultExpiry            time.Duration `yaml:"default_expiry" env:"API_KEY_EXPIRY"`
	DefaultRequestsLimit     int64         `yaml:"default_requests_limit" env:"API_KEY_REQUESTS_LIMIT"`
	MaxActivePerSubscription int           `yaml:"max_active_per_subscription" env:"API_KEY_MAX_ACTIVE"`
	CacheTTL                 time.Duration `yaml:"cache_ttl" env:"API_KEY_CACHE_TTL"`
	CacheMaxKeys             int64         `yaml:"cache_max_keys" env:"API_KEY_CACHE_MAX_KEYS"`
}

// GatewaySettings contains reverse proxy settings
type GatewaySettings struct {
	UpstreamTimeout        time.Duration `yaml:"upstream_timeout" env:"GATEWAY_UPSTREAM_TIMEOUT"`
	ForwardIdentityHeaders bool          `yaml:"forward_identity_headers" env:"GATEWAY_FORWARD_IDENTITY"`
	SeedFile               string        `yaml:"seed_file" env:"GATEWAY_SEED_FILE"`
}

// RateLimitSettings contains token bucket settings per category
type RateLimitSettings struct {
	GatewayRPS      float64       `yaml:"gateway_rps" env:"RATE_LIMIT_GATEWAY_RPS"`
	GatewayBurst    int           `yaml:"gateway_burst" env:"RATE_LIMIT_GATEWAY_BURST"`
	ManagementRPS   float64       `yaml:"management_rps" env:"RATE_LIMIT_MANAGEMENT_RPS"`
	ManagementBurst int           `yaml:"management_burst" env:"RATE_LIMIT_MANAGEMENT_BURST"`
	ValidateRPS     float64       `yaml:"validate_rps" env:"RATE_LIMIT_VALIDATE_RPS"`
	ValidateBurst   int           `yaml:"validate_burst" env:"RATE_LIMIT_VALIDATE_BURST"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"RATE_LIMIT_CLEANUP_INTERVAL"`
}

// EventSettings contains usage event delivery settings
type EventSettings struct {
	Sink          string        `yaml:"sink" env:"EVENTS_SINK"`
	Endpoint      string        `yaml:"endpoint" env:"EVENTS_ENDPOINT"`
	BufferSize    int           `yaml:"buffer_size" env:"EVENTS_BUFFER_SIZE"`
	BatchSize     int           `yaml:"batch_size" env:"EVENTS_BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"EVENTS_FLUSH_INTERVAL"`
	Workers       int           `yaml:"workers" env:"EVENTS_WORKERS"`
	MaxRetries    int           `yaml:"max_retries" env:"EVENTS_MAX_RETRIES"`
}

// MaintenanceSettings contains cron schedules for background jobs
type MaintenanceSettings struct {
	Disabled           bool   `yaml:"disabled" env:"MAINTENANCE_DISABLED"`
	CleanupSchedule    string `yaml:"cleanup_schedule" env:"MAINTENANCE_CLEANUP_SCHEDULE"`
	UsageResetSchedule string `yaml:"usage_reset_schedule" env:"MAINTENANCE_USAGE_RESET_SCHEDULE"`
}

// MetricsSettings contains Prometheus exposition settings
type MetricsSettings struct {
	Disabled bool   `yaml:"disabled" env:"METRICS_DISABLED"`
	Path     string `yaml:"path" env:"METRICS_PATH"`
}

// LoggingSettings contains logging configuration
type LoggingSettings struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	RequestLog bool   `yaml:"request_log" env:"LOG_REQUESTS"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"LOG_COMPRESS"`
}

// CORSSettings contains CORS configuration
type CORSSettings struct {
	AllowedOrigins   []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowCredentials bool     `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS"`
}

// ConnectionString returns the driver specific data source name
func (dbs *DatabaseSettings) ConnectionString() string {
	switch strings.ToLower(dbs.Driver) {
	case constants.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = dbs.User
		mc.Passwd = dbs.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(dbs.Host, strconv.Itoa(dbs.Port))
		mc.DBName = dbs.Name
		mc.ParseTime = true
		mc.Collation = "utf8mb4_unicode_ci"
		return mc.FormatDSN()

	case constants.DriverSQLite:
		return dbs.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	default:
		sslParams := constants.PostgresSSLDisable
		if dbs.SSL {
			sslParams = constants.PostgresSSLRequire
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s %s",
			dbs.Host, dbs.Port, dbs.User, dbs.Password, dbs.Name, sslParams,
		)
	}
}

// ServerAddress returns the complete server address
func (ss *ServerSettings) ServerAddress() string {
	return fmt.Sprintf("%s:%d", ss.Host, ss.Port)
}

// IsDevelopment checks if the application is running in development mode
func (as *AppSettings) IsDevelopment() bool {
	return strings.ToLower(as.Environment) == constants.EnvDevelopment
}

// IsProduction checks if the application is running in production mode
func (as *AppSettings) IsProduction() bool {
	return strings.ToLower(as.Environment) == constants.EnvProduction
}

// IsTesting checks if the application is running in testing mode
func (as *AppSettings) IsTesting() bool {
	return strings.ToLower(as.Environment) == constants.EnvTesting
}

var (
	// cfg holds the current application configuration
	cfg *AppConfig
)

// Load loads the configuration from a config file and environment variables
func Load(configPath string) (*AppConfig, error) {
	config := &AppConfig{}

	// Load configuration from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		err = yaml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Override with environment variables
	if err := LoadEnv(config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = config

	logConfig(config)

	return config, nil
}

// Get returns the current application configuration
func Get() *AppConfig {
	if cfg == nil {
		log.Fatal().Msg("configuration not loaded")
	}
	return cfg
}

// setDefaults sets default values for any missing configuration
func setDefaults(config *AppConfig) {
	// App defaults
	if config.App.Environment == "" {
		config.App.Environment = constants.EnvDevelopment
	}
	if config.App.Name == "" {
		config.App.Name = constants.DefaultAppName
	}
	if config.App.Version == "" {
		config.App.Version = "1.0.0"
	}

	// Server defaults
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port == 0 {
		config.Server.Port = constants.DefaultServerPort
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = constants.DefaultReadTimeout
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = constants.DefaultWriteTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = constants.DefaultShutdownTimeout
	}

	// Database defaults
	if config.Database.Driver == "" {
		config.Database.Driver = constants.DefaultDBDriver
	}
	config.Database.Driver = strings.ToLower(config.Database.Driver)
	if config.Database.Host == "" {
		config.Database.Host = "localhost"
	}
	if config.Database.Port == 0 {
		if config.Database.Driver == constants.DriverMySQL {
			config.Database.Port = 3306
		} else {
			config.Database.Port = constants.DefaultDBPort
		}
	}
	if config.Database.Path == "" && config.Database.Driver == constants.DriverSQLite {
		config.Database.Path = constants.DefaultSQLitePath
	}
	if config.Database.MaxConns == 0 {
		config.Database.MaxConns = constants.DefaultDBMaxConnections
	}
	if config.Database.MinConns == 0 {
		config.Database.MinConns = constants.DefaultDBMinConnections
	}

	// JWT defaults
	if config.JWT.Expiry == 0 {
		config.JWT.Expiry = constants.DefaultJWTExpiry
	}
	if config.JWT.Issuer == "" {
		config.JWT.Issuer = constants.DefaultJWTIssuer
	}

	// API Key defaults
	if config.APIKey.Environment == "" {
		config.APIKey.Environment = constants.APIKeyEnvLive
	}
	if config.APIKey.DefaultExpiry == 0 {
		config.APIKey.DefaultExpiry = constants.DefaultAPIKeyExpiry
	}
	if config.APIKey.MaxActivePerSubscription == 0 {
		config.APIKey.MaxActivePerSubscription = constants.DefaultMaxActiveKeysPerSubscription
	}
	if config.APIKey.CacheTTL == 0 {
		config.APIKey.CacheTTL = constants.DefaultKeyCacheTTL
	}
	if config.APIKey.CacheMaxKeys == 0 {
		config.APIKey.CacheMaxKeys = constants.DefaultCacheMaxKeys
	}

	// Gateway defaults
	if config.Gateway.UpstreamTimeout == 0 {
		config.Gateway.UpstreamTimeout = constants.DefaultUpstreamTimeout
	}

	// Rate limit defaults
	if config.RateLimit.GatewayRPS == 0 {
		config.RateLimit.GatewayRPS = constants.DefaultGatewayRPS
	}
	if config.RateLimit.GatewayBurst == 0 {
		config.RateLimit.GatewayBurst = constants.DefaultGatewayBurst
	}
	if config.RateLimit.ManagementRPS == 0 {
		config.RateLimit.ManagementRPS = constants.DefaultManagementRPS
	}
	if config.RateLimit.ManagementBurst == 0 {
		config.RateLimit.ManagementBurst = constants.DefaultManagementBurst
	}
	if config.RateLimit.ValidateRPS == 0 {
		config.RateLimit.ValidateRPS = constants.DefaultValidateRPS
	}
	if config.RateLimit.ValidateBurst == 0 {
		config.RateLimit.ValidateBurst = constants.DefaultValidateBurst
	}
	if config.RateLimit.CleanupInterval == 0 {
		config.RateLimit.CleanupInterval = constants.DefaultRateLimitCleanup
	}

	// Event defaults
	if config.Events.Sink == "" {
		config.Events.Sink = constants.EventSinkLog
	}
	if config.Events.BufferSize == 0 {
		config.Events.BufferSize = constants.DefaultEventBufferSize
	}
	if config.Events.BatchSize == 0 {
		config.Events.BatchSize = constants.DefaultEventBatchSize
	}
	if config.Events.FlushInterval == 0 {
		config.Events.FlushInterval = constants.DefaultEventFlushInterval
	}
	if config.Events.Workers == 0 {
		config.Events.Workers = constants.DefaultEventWorkers
	}
	if config.Events.MaxRetries == 0 {
		config.Events.MaxRetries = constants.DefaultEventMaxRetries
	}

	// Maintenance defaults
	if config.Maintenance.CleanupSchedule == "" {
		config.Maintenance.CleanupSchedule = constants.DefaultCleanupSchedule
	}
	if config.Maintenance.UsageResetSchedule == "" {
		config.Maintenance.UsageResetSchedule = constants.DefaultUsageResetSchedule
	}

	// Metrics defaults
	if config.Metrics.Path == "" {
		config.Metrics.Path = constants.DefaultMetricsPath
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = constants.DefaultLogLevel
	}
	if config.Logging.Format == "" {
		config.Logging.Format = constants.DefaultLogFormat
	}
	if config.Logging.MaxSizeMB == 0 {
		config.Logging.MaxSizeMB = constants.DefaultLogMaxSizeMB
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = constants.DefaultLogMaxBackups
	}
	if config.Logging.MaxAgeDays == 0 {
		config.Logging.MaxAgeDays = constants.DefaultLogMaxAgeDays
	}

	// CORS defaults
	if len(config.CORS.AllowedOrigins) == 0 {
		config.CORS.AllowedOrigins = []string{"*"}
	}
}

// validateConfig validates that the configuration has all required values
func validateConfig(config *AppConfig) error {
	env := strings.ToLower(config.App.Environment)
	if env != constants.EnvDevelopment && env != constants.EnvTesting && env != constants.EnvProduction {
		log.Warn().Str("environment", config.App.Environment).Msg("Invalid environment, defaulting to development")
		config.App.Environment = constants.EnvDevelopment
	}

	// In production, ensure we have real secrets
	if config.App.IsProduction() {
		if config.JWT.Secret == "" || config.JWT.Secret == constants.InsecureDefaultSecret {
			return fmt.Errorf("JWT secret must be set in production")
		}
		if config.APIKey.Pepper == "" || config.APIKey.Pepper == constants.InsecureDefaultSecret {
			return fmt.Errorf("API key pepper must be set in production")
		}
	}

	switch config.Database.Driver {
	case constants.DriverPostgres, constants.DriverMySQL:
		if config.Database.User == "" {
			return fmt.Errorf("database user must be set")
		}
	case constants.DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}

	keyEnv := config.APIKey.Environment
	if keyEnv != constants.APIKeyEnvLive && keyEnv != constants.APIKeyEnvTest {
		return fmt.Errorf("invalid API key environment: %s", keyEnv)
	}

	switch config.Events.Sink {
	case constants.EventSinkNone, constants.EventSinkLog:
	case constants.EventSinkHTTP:
		if config.Events.Endpoint == "" {
			return fmt.Errorf("events endpoint must be set for the http sink")
		}
	default:
		return fmt.Errorf("invalid events sink: %s", config.Events.Sink)
	}

	// Validate log level
	logLevel := strings.ToLower(config.Logging.Level)
	validLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLevel := false
	for _, level := range validLevels {
		if logLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// logConfig logs the current configuration, masking sensitive values
func logConfig(config *AppConfig) {
	logCfg := *config

	if logCfg.Database.Password != "" {
		logCfg.Database.Password = constants.LogRedactedValue
	}
	if logCfg.JWT.Secret != "" {
		logCfg.JWT.Secret = constants.LogRedactedValue
	}
	if logCfg.APIKey.Pepper != "" {
		logCfg.APIKey.Pepper = constants.LogRedactedValue
	}

	log.Info().
		Str("environment", logCfg.App.Environment).
		Str("version", logCfg.App.Version).
		Str("server", logCfg.Server.ServerAddress()).
		Str("db_driver", logCfg.Database.Driver).
		Str("db_host", logCfg.Database.Host).
		Int("db_port", logCfg.Database.Port).
		Str("db_name", logCfg.Database.Name).
		Str("key_environment", logCfg.APIKey.Environment).
		Dur("key_cache_ttl", logCfg.APIKey.CacheTTL).
		Str("events_sink", logCfg.Events.Sink).
		Str("log_level", logCfg.Logging.Level).
		Msg("Configuration loaded")
}
