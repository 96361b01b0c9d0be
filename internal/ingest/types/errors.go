package types

import (
	"errors"
	"fmt"
)

// Error kinds from the ingestion error taxonomy. Components classify
// failures into one of these so the queue can decide whether a job is
// worth retrying.
var (
	// ErrInvalidInput marks unsupported mime types, malformed URLs, empty
	// payloads, or an invalid session reference.
	ErrInvalidInput = errors.New("ingest: invalid input")
	// ErrSourceAcquisition marks a fetch/parse failure (encrypted file,
	// timeout, 4xx/5xx from a fetcher).
	ErrSourceAcquisition = errors.New("ingest: source acquisition failed")
	// ErrTransientExternal marks a retryable AI/store error (network reset,
	// rate-limit, 5xx, timeout).
	ErrTransientExternal = errors.New("ingest: transient external error")
	// ErrPermanentExternal marks a non-retryable AI/store error.
	ErrPermanentExternal = errors.New("ingest: permanent external error")
	// ErrPersistenceConflict marks a unique/constraint violation on a chunk
	// insert.
	ErrPersistenceConflict = errors.New("ingest: persistence conflict")
	// ErrTimeout marks a job, heartbeat, progress, or chunk timeout.
	ErrTimeout = errors.New("ingest: timeout")
	// ErrCancelled marks an explicit job or session cancellation.
	ErrCancelled = errors.New("ingest: cancelled")
)

// Wrap annotates cause with kind (one of the Err* sentinels above) so
// errors.Is(result, kind) holds while the original message is preserved.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", kind, cause)
}

// Retryable reports whether a queue should schedule a retry for err,
// classifying it against the error taxonomy above.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrTransientExternal), errors.Is(err, ErrTimeout):
		return true
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPermanentExternal),
		errors.Is(err, ErrPersistenceConflict), errors.Is(err, ErrCancelled),
		errors.Is(err, ErrSourceAcquisition):
		return false
	default:
		// Unclassified errors are treated as transient: the source of truth
		// is the error kind a component reports, not the raw error value.
		return true
	}
}
