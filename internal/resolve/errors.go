package resolve

import (
	"errors"
	"fmt"
	"time"
)

// The resolve protocol returns typed errors so the transport layer can
// map them onto the external status contract without string matching.

var (
	// ErrUnauthorized covers every authentication failure: malformed
	// token, unknown prefix, hash mismatch, disabled token. Callers get
	// no finer detail.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError is a malformed request body (missing handle, empty or
// oversized batch).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// RateLimitedError tells the caller to back off and retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return "rate limit exceeded" }

// NotFoundError means the authenticated agent owns no item with this
// handle. Distinguishable from DisabledError on purpose; the token is
// already scoped to the agent.
type NotFoundError struct {
	Handle string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("unknown handle: %s", e.Handle) }

// DisabledError means the item exists but was administratively disabled.
type DisabledError struct {
	Handle string
}

func (e *DisabledError) Error() string { return fmt.Sprintf("credential disabled: %s", e.Handle) }
