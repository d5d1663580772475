package server

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// Lifecycle is the contract cmd/api drives the server through.
type Lifecycle interface {
	// SetupRoutes configures the HTTP routes for the server
	SetupRoutes()

	// GetRouter returns the configured router for request handling
	GetRouter() chi.Router

	// Start begins listening for HTTP requests
	Start() error

	// Shutdown gracefully stops the server
	Shutdown(ctx context.Context) error

	// SetupMaintenanceTasks schedules background maintenance jobs
	SetupMaintenanceTasks() error
}

var _ Lifecycle = (*Server)(nil)
