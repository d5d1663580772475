package events

import (
	"net/http"
	"time"
)

// ResponseRecorder wraps an http.ResponseWriter to capture the status code
// and the number of body bytes written.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode   int
	ResponseSize int64
	StartTime    time.Time

	wroteHeader bool
}

// NewResponseRecorder creates a ResponseRecorder with status 200 and the clock started.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
		StartTime:      time.Now(),
	}
}

// WriteHeader records the first status code written.
func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	if !rr.wroteHeader {
		rr.StatusCode = statusCode
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(statusCode)
}

// Write counts body bytes.
func (rr *ResponseRecorder) Write(data []byte) (int, error) {
	rr.wroteHeader = true
	n, err := rr.ResponseWriter.Write(data)
	rr.ResponseSize += int64(n)
	return n, err
}

// Flush forwards to the wrapped writer when it supports streaming.
func (rr *ResponseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rr *ResponseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// ResponseTime returns the time elapsed since the recorder was created.
func (rr *ResponseRecorder) ResponseTime() time.Duration {
	return time.Since(rr.StartTime)
}

// IsSuccess reports a 2xx status.
func (rr *ResponseRecorder) IsSuccess() bool {
	return rr.StatusCode >= 200 && rr.StatusCode < 300
}
