package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
)

// logFile is the rotating file sink, set when logging.file is configured
var logFile *lumberjack.Logger

// sensitiveQueryMarkers flag queries whose string arguments must not be logged
var sensitiveQueryMarkers = []string{
	constants.ColumnKeyDigest,
	"secret",
	"token",
	"pepper",
}

// InitLogger initializes the application logger with the given configuration
func InitLogger(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = NewLogger(cfg, logOutput(cfg))

	log.Info().Msg("Logger initialized")
}

// NewLogger builds a zerolog logger carrying the application fields
func NewLogger(cfg *config.AppConfig, output io.Writer) zerolog.Logger {
	return zerolog.New(output).
		With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("env", cfg.App.Environment).
		Logger()
}

// logOutput selects stdout or a console writer, teeing into a rotating file when configured
func logOutput(cfg *config.AppConfig) io.Writer {
	var output io.Writer = os.Stdout
	if strings.ToLower(cfg.Logging.Format) == "console" && !cfg.App.IsProduction() {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	if cfg.Logging.File == "" {
		return output
	}

	logFile = &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}

	return zerolog.MultiLevelWriter(output, logFile)
}

// CloseLogger flushes and closes the rotating log file, if any
func CloseLogger() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// RequestLogger creates a logger with request-specific context
func RequestLogger(requestID, userID, method, path string) zerolog.Logger {
	logger := log.With().
		Str(constants.LogFieldRequestID, requestID).
		Str("method", method).
		Str("path", path)

	if userID != "" {
		logger = logger.Str(constants.LogFieldUserID, userID)
	}

	return logger.Logger()
}

// LogHTTPRequest logs an HTTP request with request details
func LogHTTPRequest(requestID, method, path, remoteAddr, userAgent string, statusCode int, latency time.Duration) {
	// Only log some paths at debug level to reduce noise
	if path == constants.HealthPath || path == constants.DefaultMetricsPath {
		if zerolog.GlobalLevel() != zerolog.DebugLevel {
			return
		}
	}

	event := log.Debug()

	// Elevate error responses to warning/error level
	if statusCode >= 400 && statusCode < 500 {
		event = log.Warn()
	} else if statusCode >= 500 {
		event = log.Error()
	} else if strings.HasPrefix(path, constants.APIBasePath) || strings.HasPrefix(path, constants.VeilBasePath) {
		event = log.Info()
	}

	event.
		Str(constants.LogFieldRequestID, requestID).
		Str("method", method).
		Str("path", path).
		Str("remote_addr", remoteAddr).
		Str("user_agent", userAgent).
		Int("status", statusCode).
		Dur("latency", latency).
		Msg("HTTP Request")
}

// LogPanic logs a recovered panic value
func LogPanic(recovered interface{}, stack []byte) {
	log.Error().
		Interface("panic", recovered).
		Str("stack", string(stack)).
		Msg("Panic recovered")
}

// LogDBQuery logs a database query for debugging.
// String arguments are redacted when the query touches key digests or secrets.
func LogDBQuery(query string, args []interface{}, duration time.Duration, err error) {
	redact := false
	lowerQuery := strings.ToLower(query)
	for _, marker := range sensitiveQueryMarkers {
		if strings.Contains(lowerQuery, marker) {
			redact = true
			break
		}
	}

	safeArgs := make([]interface{}, len(args))
	for i, arg := range args {
		if _, ok := arg.(string); ok && redact {
			safeArgs[i] = constants.LogRedactedValue
			continue
		}
		safeArgs[i] = arg
	}

	event := log.Debug()
	if err != nil {
		event = log.Error().Err(err)
	}

	event.
		Str("query", query).
		Interface("args", safeArgs).
		Dur("duration", duration).
		Msg("Database query executed")
}

// LogAPIKey logs API key lifecycle events
func LogAPIKey(event, keyID, userID string) {
	log.Info().
		Str("event", event).
		Str(constants.LogFieldKeyID, keyID).
		Str(constants.LogFieldUserID, userID).
		Msg(constants.LogEventAPIKey)
}
