package live

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Broadcast-Mate/lcc-dbupdater/chessfeed"
	"github.com/Broadcast-Mate/lcc-dbupdater/commentary"
)

// FetchError means a game could not be read from the feed: transport
// failure, malformed document or missing pairing. It aborts only that game.
type FetchError struct {
	Round      int
	GameNumber int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch round %d game %d: %s", e.Round, e.GameNumber, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// EnrichmentError reports a commentary or image stage that failed after all
// attempts. The game update is still persisted without the missing parts.
type EnrichmentError struct {
	GameID string
	Stage  string
	Err    error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich %s (%s): %v", e.GameID, e.Stage, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure. The next poll retries naturally
// because the stored state is still stale.
type PersistenceError struct {
	GameID string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.GameID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorClass labels errors for metrics and logs. It never changes control
// flow: every failure is retried by the next poll.
type ErrorClass int

const (
	// ErrorClassRetryable is a transient failure (network, 5xx, rate limit, empty response).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal will keep failing until someone changes something (4xx, missing pairing, bad data).
	ErrorClassFatal
	// ErrorClassUnknown is reserved for nil errors.
	ErrorClassUnknown
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError inspects typed errors first and falls back to message
// patterns for errors that crossed an API boundary as text.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, commentary.ErrInvalidResponse) {
		return ErrorClassRetryable
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	var se *chessfeed.StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Reason == ReasonNoPairing {
		return ErrorClassFatal
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())
	for _, p := range []string{"500", "502", "503", "504", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}
	for _, p := range []string{"401", "403", "404", "unauthorized", "not found", "invalid", "decode"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	// Unmatched errors are treated as transient; the next poll retries anyway.
	return ErrorClassRetryable
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == 429 || code >= 500:
		return ErrorClassRetryable
	case code >= 400:
		return ErrorClassFatal
	}
	return ErrorClassRetryable
}
