package constants

import (
	"time"
)

// Polling behavior
const (
	// PollInterval - delay between successive batch status fetches (5 seconds)
	// The poller is self-scheduling: the next fetch is only queued once the
	// previous one has returned, so this is a floor, not a fixed rate.
	PollInterval = 5 * time.Second

	// TokenExpiryMargin - a cached bearer token is considered stale this long
	// before its real expiry, so an in-flight request never rides an expiring
	// token.
	TokenExpiryMargin = 30 * time.Second
)

// Intake limits
const (
	// MaxFilesSingle - file limit in single-image context
	MaxFilesSingle = 1

	// MaxFilesMulti - default file limit in multi-image context.
	// Overridable via [generation] max_files in the config file.
	MaxFilesMulti = 10

	// SniffLen - bytes read from the head of a candidate file for MIME
	// detection (net/http.DetectContentType never needs more than 512).
	SniffLen = 512
)

// Generation parameter bounds
const (
	MinDurationSeconds = 1
	MaxDurationSeconds = 60

	MinWeight = 0.0
	MaxWeight = 1.0
)

// Terminal batch statuses reported by the generation backend.
// Any other status string means the batch is still processing.
const (
	StatusCompleted          = "completed"
	StatusFailed             = "failed"
	StatusError              = "error"
	StatusPartiallyCompleted = "partially_completed"
)

// HTTP client tuning
const (
	// HTTPIdleConnTimeout - how long idle connections are kept for reuse
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake deadline
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// APIRetryMax - transport-level retries for backend calls
	APIRetryMax = 3

	// APIRetryWaitMin / APIRetryWaitMax - retry backoff bounds
	APIRetryWaitMin = 1 * time.Second
	APIRetryWaitMax = 10 * time.Second
)

// EventBusDefaultBuffer - per-subscriber channel buffer for the event bus
const EventBusDefaultBuffer = 256

// EventBusMaxBuffer - hard cap on a requested subscriber buffer
const EventBusMaxBuffer = 4096
