package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jpillora/backoff"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/metrics"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// batchPayload is the body POSTed to the events endpoint.
type batchPayload struct {
	Events []UsageEvent `json:"events"`
}

// HTTPQueue batches usage events and POSTs them to an HTTP endpoint.
// Batches are sent on a worker pool and retried with exponential backoff.
type HTTPQueue struct {
	events        chan UsageEvent
	endpoint      string
	client        *http.Client
	pool          *ants.PoolWithFunc
	metrics       *metrics.Metrics
	batchSize     int
	flushInterval time.Duration
	maxRetries    int
	minBackoff    time.Duration
	maxBackoff    time.Duration

	mu        sync.RWMutex
	stopped   bool
	startOnce sync.Once
	collector sync.WaitGroup
	sends     sync.WaitGroup

	draining atomic.Bool
	errMu    sync.Mutex
	errs     *multierror.Error
}

// NewHTTPQueue creates an HTTPQueue from the events settings.
//
// Parameters:
//   - cfg: Endpoint, buffer, batch, flush, worker and retry settings
//   - m: Metrics for sent and dropped events; may be nil
//
// Returns:
//   - A queue ready to Start
//   - An error if the worker pool cannot be created
func NewHTTPQueue(cfg *config.EventSettings, m *metrics.Metrics) (*HTTPQueue, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("events endpoint is required for the http sink")
	}

	q := &HTTPQueue{
		events:        make(chan UsageEvent, positiveOr(cfg.BufferSize, constants.DefaultEventBufferSize)),
		endpoint:      cfg.Endpoint,
		client:        &http.Client{Timeout: constants.EventHTTPClientTimeout},
		metrics:       m,
		batchSize:     positiveOr(cfg.BatchSize, constants.DefaultEventBatchSize),
		flushInterval: cfg.FlushInterval,
		maxRetries:    cfg.MaxRetries,
		minBackoff:    constants.EventRetryMinBackoff,
		maxBackoff:    constants.EventRetryMaxBackoff,
	}
	if q.flushInterval <= 0 {
		q.flushInterval = constants.DefaultEventFlushInterval
	}
	if q.maxRetries < 0 {
		q.maxRetries = 0
	}

	pool, err := ants.NewPoolWithFunc(positiveOr(cfg.Workers, constants.DefaultEventWorkers), q.sendBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to create event worker pool: %w", err)
	}
	q.pool = pool

	return q, nil
}

// Enqueue adds an event, dropping it when the buffer is full.
func (q *HTTPQueue) Enqueue(event UsageEvent) error {
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
		log.Warn().
			Str(constants.LogFieldAPIPath, event.APIPath).
			Str("method", event.Method).
			Msg("Event queue is full, dropping event")
		return ErrQueueFull
	}
}

// Start begins collecting and sending batches.
func (q *HTTPQueue) Start() error {
	q.startOnce.Do(q.launch)
	log.Info().
		Str("endpoint", q.endpoint).
		Int("batch_size", q.batchSize).
		Dur("flush_interval", q.flushInterval).
		Msg("Event queue started")
	return nil
}

// Stop sends buffered events, waits for in-flight batches and releases the
// worker pool. Delivery failures during the final flush are returned together.
func (q *HTTPQueue) Stop() error {
	q.startOnce.Do(q.launch)

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.draining.Store(true)
	close(q.events)
	q.mu.Unlock()

	q.collector.Wait()
	q.sends.Wait()
	q.pool.Release()
	q.client.CloseIdleConnections()

	log.Info().Msg("Event queue stopped")

	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.errs.ErrorOrNil()
}

func (q *HTTPQueue) launch() {
	q.collector.Add(1)
	go q.collect()
}

// collect groups events into batches, dispatching on size or on the flush tick.
func (q *HTTPQueue) collect() {
	defer q.collector.Done()

	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	buffer := make([]UsageEvent, 0, q.batchSize)
	flush := func() {
		if len(buffer) == 0 {
			return
		}
		batch := make([]UsageEvent, len(buffer))
		copy(batch, buffer)
		buffer = buffer[:0]
		q.dispatch(batch)
	}

	for {
		select {
		case event, ok := <-q.events:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, event)
			if len(buffer) >= q.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (q *HTTPQueue) dispatch(batch []UsageEvent) {
	q.sends.Add(1)
	if err := q.pool.Invoke(batch); err != nil {
		q.sends.Done()
		q.fail(batch, fmt.Errorf("failed to schedule event batch: %w", err))
	}
}

// sendBatch is the pool function. It retries until maxRetries is exhausted.
func (q *HTTPQueue) sendBatch(arg interface{}) {
	defer q.sends.Done()

	batch, ok := arg.([]UsageEvent)
	if !ok || len(batch) == 0 {
		return
	}

	body, err := json.Marshal(batchPayload{Events: batch})
	if err != nil {
		q.fail(batch, fmt.Errorf("failed to marshal events: %w", err))
		return
	}

	b := &backoff.Backoff{
		Min:    q.minBackoff,
		Max:    q.maxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for {
		err = q.post(body)
		if err == nil {
			q.metrics.EventsSent(len(batch))
			log.Debug().Int("events_count", len(batch)).Msg("Sent usage events")
			return
		}

		if int(b.Attempt()) >= q.maxRetries {
			q.fail(batch, err)
			return
		}

		wait := b.Duration()
		log.Warn().
			Err(err).
			Int("events_count", len(batch)).
			Dur("retry_in", wait).
			Msg("Failed to send usage events, retrying")
		time.Sleep(wait)
	}
}

func (q *HTTPQueue) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, q.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("events endpoint returned status %d: %s",
			resp.StatusCode, utils.TruncateString(string(bytes.TrimSpace(snippet)), 200))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// fail drops a batch, recording the error for Stop when shutting down.
func (q *HTTPQueue) fail(batch []UsageEvent, err error) {
	q.metrics.EventsDropped(DropDelivery, len(batch))
	log.Error().
		Err(err).
		Int("events_count", len(batch)).
		Str("endpoint", q.endpoint).
		Msg("Dropping usage events")

	if q.draining.Load() {
		q.errMu.Lock()
		q.errs = multierror.Append(q.errs, err)
		q.errMu.Unlock()
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
