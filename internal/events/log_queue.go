package events

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/metrics"
)

// LogQueue writes each usage event as a JSON line on a dedicated logger,
// for collection by a log shipper.
type LogQueue struct {
	events      chan UsageEvent
	eventLogger zerolog.Logger
	metrics     *metrics.Metrics

	mu        sync.RWMutex
	stopped   bool
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewLogQueue creates a LogQueue writing to out.
func NewLogQueue(out io.Writer, bufferSize int, m *metrics.Metrics) *LogQueue {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultEventBufferSize
	}
	return &LogQueue{
		events:      make(chan UsageEvent, bufferSize),
		eventLogger: zerolog.New(out).With().Timestamp().Logger(),
		metrics:     m,
	}
}

// Enqueue adds an event, dropping it when the buffer is full.
func (q *LogQueue) Enqueue(event UsageEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		q.metrics.EventsDropped(DropStopped, 1)
		return ErrQueueStopped
	}

	select {
	case q.events <- event:
		return nil
	default:
		q.metrics.EventsDropped(DropBufferFull, 1)
		return ErrQueueFull
	}
}

// Start begins writing events.
func (q *LogQueue) Start() error {
	q.startOnce.Do(q.launch)
	log.Info().Msg("Usage events are written to the event log")
	return nil
}

// Stop writes any buffered events and waits for the writer to exit.
func (q *LogQueue) Stop() error {
	q.startOnce.Do(q.launch)

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.events)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *LogQueue) launch() {
	q.wg.Add(1)
	go q.process()
}

func (q *LogQueue) process() {
	defer q.wg.Done()

	for event := range q.events {
		entry := q.eventLogger.Info().
			Str("event_type", "api_usage").
			Str("id", event.ID).
			Str(constants.LogFieldAPIPath, event.APIPath).
			Str(constants.LogFieldKeyID, event.APIKeyID).
			Int64(constants.LogFieldUserID, event.UserID).
			Str("method", event.Method).
			Int("status_code", event.StatusCode).
			Bool("success", event.Success).
			Int64("response_time_ms", event.ResponseTime).
			Int64("request_size", event.RequestSize).
			Int64("response_size", event.ResponseSize).
			Time("event_time", event.Timestamp)
		if event.SubscriptionID != nil {
			entry = entry.Int64("subscription_id", *event.SubscriptionID)
		}
		entry.Msg("usage_event")
		q.metrics.EventsSent(1)
	}
}
