// Package events records gateway usage and delivers it to a configured sink.
//
// Events are produced on the proxy path and must never block it: every queue
// accepts events without waiting and drops them, counted, when its buffer is full.
package events

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/metrics"
	"github.com/try-veil/veil-gateway/internal/models"
)

// Drop reasons reported to metrics
const (
	DropBufferFull = "buffer_full"
	DropStopped    = "stopped"
	DropDelivery   = "delivery"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("event queue is full")

	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = errors.New("event queue is stopped")
)

// UsageEvent describes one proxied request.
type UsageEvent struct {
	ID             string    `json:"id"`
	APIPath        string    `json:"api_path"`
	APIKeyID       string    `json:"api_key_id"`
	UserID         int64     `json:"user_id"`
	SubscriptionID *int64    `json:"subscription_id,omitempty"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	Success        bool      `json:"success"`
	ResponseTime   int64     `json:"response_time_ms"`
	RequestSize    int64     `json:"request_size"`
	ResponseSize   int64     `json:"response_size"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewUsageEvent builds the event for a completed request.
//
// Parameters:
//   - apiPath: The onboarded API path the request matched
//   - method: The HTTP method of the request
//   - principal: The validated key owner
//   - rec: The recorder that wrapped the response
//   - requestSize: The request body size, or -1 when unknown
//
// Returns:
//   - A UsageEvent stamped with a fresh id and the current time
func NewUsageEvent(apiPath, method string, principal *models.Principal, rec *ResponseRecorder, requestSize int64) UsageEvent {
	event := UsageEvent{
		ID:           uuid.New().String(),
		APIPath:      apiPath,
		Method:       method,
		StatusCode:   rec.StatusCode,
		Success:      rec.IsSuccess(),
		ResponseTime: rec.ResponseTime().Milliseconds(),
		RequestSize:  requestSize,
		ResponseSize: rec.ResponseSize,
		Timestamp:    time.Now().UTC(),
	}
	if principal != nil {
		event.APIKeyID = principal.KeyID()
		event.UserID = principal.UserID
		event.SubscriptionID = principal.SubscriptionID
	}
	return event
}

// Queue accepts usage events and delivers them in the background.
type Queue interface {
	// Enqueue adds an event without blocking.
	Enqueue(event UsageEvent) error

	// Start begins background delivery.
	Start() error

	// Stop flushes pending events and releases resources.
	Stop() error
}

// NewQueue builds the queue selected by cfg.Sink.
func NewQueue(cfg *config.EventSettings, m *metrics.Metrics) (Queue, error) {
	switch cfg.Sink {
	case constants.EventSinkNone:
		return NopQueue{}, nil
	case constants.EventSinkLog, "":
		return NewLogQueue(os.Stdout, cfg.BufferSize, m), nil
	case constants.EventSinkHTTP:
		return NewHTTPQueue(cfg, m)
	default:
		return nil, fmt.Errorf("unknown events sink: %s", cfg.Sink)
	}
}

// NopQueue discards every event.
type NopQueue struct{}

func (NopQueue) Enqueue(UsageEvent) error { return nil }
func (NopQueue) Start() error             { return nil }
func (NopQueue) Stop() error              { return nil }
