// Package api provides error types for generation-backend responses.
package api

import (
	"errors"
)

// ErrBatchNotFound indicates the backend no longer knows the batch id.
// A persisted session hitting this on resume is purged rather than retried.
var ErrBatchNotFound = errors.New("batch not found")

// ErrUnrecognizedStatus indicates a status response that decoded but carried
// no recognizable status value. Treated like an unverifiable batch.
var ErrUnrecognizedStatus = errors.New("unrecognized batch status")

// IsBatchGone reports whether an error means the batch cannot be verified
// against the backend at all (missing or unreadable), as opposed to a
// transient fetch failure.
func IsBatchGone(err error) bool {
	return errors.Is(err, ErrBatchNotFound) || errors.Is(err, ErrUnrecognizedStatus)
}
