// Package server provides the HTTP server for the Veil gateway.
// It handles routing, middleware configuration, and server lifecycle management.
//
// The server follows a structured initialization approach with dependency injection:
// database, migrations, auth providers, repositories, cache, metrics, the usage
// event queue, services, handlers and finally routes. Background maintenance runs
// on cron schedules and every component is released on graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/cache"
	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/database"
	"github.com/try-veil/veil-gateway/internal/events"
	"github.com/try-veil/veil-gateway/internal/gateway"
	"github.com/try-veil/veil-gateway/internal/handlers"
	"github.com/try-veil/veil-gateway/internal/metrics"
	"github.com/try-veil/veil-gateway/internal/repository"
	"github.com/try-veil/veil-gateway/internal/service"
	"github.com/try-veil/veil-gateway/migrations"
	"github.com/try-veil/veil-gateway/scripts"
)

// Handlers contains all HTTP handlers for the application.
type Handlers struct {
	// KeyHandler manages consumer and admin key endpoints
	KeyHandler *handlers.KeyHandler

	// APIHandler manages provider endpoints for onboarded APIs
	APIHandler *handlers.APIHandler

	// Gateway proxies every request outside the management namespaces
	Gateway *gateway.Handler
}

// AuthProviders contains all authentication providers for the application.
type AuthProviders struct {
	// JWTService validates management tokens
	JWTService *auth.JWTService

	// KeyGenerator issues API keys and derives their digests
	KeyGenerator *auth.APIKeyService
}

// repositories holds the data access layer
type repositories struct {
	apiKeyRepo    repository.APIKeyRepository
	apiConfigRepo repository.APIConfigRepository
}

// services holds the business services
type services struct {
	keyService        *service.KeyService
	validationService *service.ValidationService
	apiService        *service.APIService
	securityService   *service.SecurityService
}

// Server represents the API server.
// It encapsulates all server components and handles server lifecycle management,
// including initialization, startup, and graceful shutdown.
type Server struct {
	// Config contains application configuration
	Config *config.AppConfig

	// Db provides database access
	Db *database.Pool

	// router handles HTTP routing
	router chi.Router

	// Handlers contains all HTTP request handlers
	Handlers *Handlers

	authProviders *AuthProviders
	repositories  repositories
	services      services

	keyCache *cache.KeyCache
	metrics  *metrics.Metrics
	queue    events.Queue
	cron     *cron.Cron

	// httpServer is the underlying HTTP server
	httpServer *http.Server
}

// NewServer connects to the configured database and builds the server on it.
//
// Parameters:
//   - cfg: Application configuration including database, server, and auth settings
//
// Returns:
//   - A fully initialized Server instance ready to start
//   - An error if initialization of any component fails
func NewServer(cfg *config.AppConfig) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	s, err := NewServerWithDB(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewServerWithDB creates a server on an open database pool.
// The initialization order is: migrations → auth providers → repositories →
// cache, metrics and events → services → seed → handlers → routes.
//
// Parameters:
//   - cfg: Application configuration
//   - db: An open database pool; Shutdown closes it
//
// Returns:
//   - A fully initialized Server instance ready to start
//   - An error if initialization of any component fails
func NewServerWithDB(cfg *config.AppConfig, db *database.Pool) (*Server, error) {
	s := &Server{
		Config: cfg,
		Db:     db,
	}

	if err := s.setupDatabase(); err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	s.setupAuthProviders()
	s.setupRepositories()

	if err := s.setupInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to set up infrastructure: %w", err)
	}

	if err := s.setupServices(); err != nil {
		s.releaseInfrastructure()
		return nil, fmt.Errorf("failed to set up services: %w", err)
	}

	if err := s.seedAPIs(); err != nil {
		s.releaseInfrastructure()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	// Warm the gateway's route snapshot so the first proxied request skips the load
	if err := s.services.apiService.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to preload onboarded APIs")
	}

	s.setupHandlers()
	s.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ServerAddress(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  constants.DefaultIdleTimeout,
	}

	return s, nil
}

// setupDatabase runs migrations so the schema is up-to-date before anything queries it.
func (s *Server) setupDatabase() error {
	migrator := migrations.NewMigrator(s.Db)
	if err := migrator.RunMigrations(context.Background()); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

// setupAuthProviders creates the JWT verifier and the API key generator.
func (s *Server) setupAuthProviders() {
	s.authProviders = &AuthProviders{
		JWTService:   auth.NewJWTService(&s.Config.JWT),
		KeyGenerator: auth.NewAPIKeyService(&s.Config.APIKey),
	}
}

// setupRepositories initializes all data repositories on the database pool.
func (s *Server) setupRepositories() {
	s.repositories.apiKeyRepo = repository.NewAPIKeyRepository(s.Db)
	s.repositories.apiConfigRepo = repository.NewAPIConfigRepository(s.Db)
}

// setupInfrastructure creates the key cache, metrics and the usage event queue.
// The queue is started here so the gateway can enqueue from its first request.
func (s *Server) setupInfrastructure() error {
	keyCache, err := cache.NewKeyCache(&s.Config.APIKey)
	if err != nil {
		return err
	}
	s.keyCache = keyCache

	if !s.Config.Metrics.Disabled {
		s.metrics = metrics.New()
	}

	queue, err := events.NewQueue(&s.Config.Events, s.metrics)
	if err != nil {
		s.keyCache.Close()
		return err
	}
	if err := queue.Start(); err != nil {
		s.keyCache.Close()
		return fmt.Errorf("failed to start event queue: %w", err)
	}
	s.queue = queue

	return nil
}

// releaseInfrastructure undoes setupInfrastructure when a later step fails.
func (s *Server) releaseInfrastructure() {
	if s.services.securityService != nil {
		s.services.securityService.Stop()
	}
	if s.queue != nil {
		if err := s.queue.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop event queue")
		}
	}
	if s.keyCache != nil {
		s.keyCache.Close()
	}
}

// setupServices initializes all business services.
func (s *Server) setupServices() error {
	if s.authProviders == nil || s.authProviders.JWTService == nil {
		return fmt.Errorf("JWT service not initialized")
	}
	if s.authProviders.KeyGenerator == nil {
		return fmt.Errorf("API key generator not initialized")
	}

	s.services.keyService = service.NewKeyService(
		s.repositories.apiKeyRepo,
		s.repositories.apiConfigRepo,
		s.authProviders.KeyGenerator,
		s.keyCache,
		&s.Config.APIKey,
	)

	s.services.validationService = service.NewValidationService(
		s.repositories.apiKeyRepo,
		s.authProviders.KeyGenerator,
		s.keyCache,
		s.metrics,
	)

	s.services.apiService = service.NewAPIService(
		s.repositories.apiConfigRepo,
		s.services.keyService,
		s.keyCache,
	)

	s.services.securityService = service.NewSecurityService(&s.Config.RateLimit, s.metrics)

	return nil
}

// seedAPIs onboards the APIs of the configured seed file, if any.
func (s *Server) seedAPIs() error {
	path := s.Config.Gateway.SeedFile
	if path == "" {
		return nil
	}

	file, err := scripts.LoadSeedFile(path)
	if err != nil {
		return err
	}

	seeder := scripts.NewSeeder(s.Db, s.services.apiService)
	_, err = seeder.SeedDatabase(context.Background(), file)
	return err
}

// setupHandlers initializes all HTTP request handlers.
func (s *Server) setupHandlers() {
	s.Handlers = &Handlers{
		KeyHandler: handlers.NewKeyHandler(s.services.keyService),
		APIHandler: handlers.NewAPIHandler(s.services.apiService),
		Gateway: gateway.NewHandler(
			&s.Config.Gateway,
			s.services.apiService,
			s.services.validationService,
			s.services.securityService,
			s.queue,
			s.metrics,
		),
	}
}

// Start starts the HTTP server and sets up signal handling for graceful shutdown.
// It blocks until the server fails or a shutdown signal is received.
//
// Returns:
//   - An error if the server fails to start or encounters an error during operation
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		log.Info().
			Str("address", s.Config.Server.ServerAddress()).
			Msg("Starting server")

		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	if err := s.SetupMaintenanceTasks(); err != nil {
		return err
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := s.Shutdown(ctx); err != nil {
			// Shutdown the server immediately if graceful shutdown fails
			if closeErr := s.httpServer.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
				log.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the server and releases every component.
//
// Parameters:
//   - ctx: Context with timeout for the shutdown operation
//
// Returns:
//   - Every error met along the way, aggregated
//
// Components are stopped in order: the HTTP server, maintenance jobs, in-flight
// gateway bookkeeping, the event queue (flushing pending events), rate limiting,
// the key cache and finally the database.
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("server shutdown error: %w", err))
	} else {
		log.Info().Msg("Server stopped gracefully")
	}

	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("maintenance jobs did not stop: %w", ctx.Err()))
		}
	}

	if s.Handlers != nil && s.Handlers.Gateway != nil {
		s.Handlers.Gateway.Wait()
	}

	if s.queue != nil {
		if err := s.queue.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("event queue shutdown error: %w", err))
		}
	}

	if s.services.securityService != nil {
		s.services.securityService.Stop()
	}

	if s.keyCache != nil {
		s.keyCache.Close()
	}

	s.Db.Close()
	log.Info().Msg("Database connection closed")

	return result.ErrorOrNil()
}

// SetupMaintenanceTasks schedules the background maintenance jobs.
//
// The jobs are:
// 1. Deleting expired API keys on Maintenance.CleanupSchedule
// 2. Resetting the used request counters on Maintenance.UsageResetSchedule
//
// Returns:
//   - An error if a schedule cannot be parsed
func (s *Server) SetupMaintenanceTasks() error {
	if s.Config.Maintenance.Disabled {
		log.Info().Msg("Maintenance tasks disabled")
		return nil
	}

	c := cron.New()

	if _, err := c.AddFunc(s.Config.Maintenance.CleanupSchedule, s.maintenanceJob(constants.JobCleanupExpiredKeys, s.services.keyService.CleanupExpiredKeys)); err != nil {
		return fmt.Errorf("invalid cleanup schedule: %w", err)
	}
	if _, err := c.AddFunc(s.Config.Maintenance.UsageResetSchedule, s.maintenanceJob(constants.JobResetUsage, s.services.keyService.ResetAllUsage)); err != nil {
		return fmt.Errorf("invalid usage reset schedule: %w", err)
	}

	c.Start()
	s.cron = c

	log.Info().
		Str("cleanup_schedule", s.Config.Maintenance.CleanupSchedule).
		Str("usage_reset_schedule", s.Config.Maintenance.UsageResetSchedule).
		Msg("Maintenance tasks scheduled")

	return nil
}

// maintenanceJob wraps a job with a timeout, logging and row metrics.
func (s *Server) maintenanceJob(name string, run func(ctx context.Context) (int64, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.MaintenanceTimeout)
		defer cancel()

		count, err := run(ctx)
		if err != nil {
			log.Error().Err(err).Str("job", name).Msg("Maintenance job failed")
			return
		}

		s.metrics.MaintenanceRows(name, count)
		if count > 0 {
			log.Info().Str("job", name).Int64("count", count).Msg("Maintenance job completed")
		}
	}
}
