package transport

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"agentvault/internal/admin"
	"agentvault/internal/crypto"
	"agentvault/internal/resolve"
	"agentvault/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// writeResolveError maps resolve protocol errors onto the agent-surface
// status contract: 401 bad/unknown token, 404 unknown handle, 403
// disabled, 429 rate limited with Retry-After, 502 not configured or
// internal (crypto failures included, deliberately indistinguishable).
func writeResolveError(w http.ResponseWriter, err error) {
	var (
		validationErr  *resolve.ValidationError
		rateLimitedErr *resolve.RateLimitedError
		notFoundErr    *resolve.NotFoundError
		disabledErr    *resolve.DisabledError
	)
	switch {
	case errors.Is(err, crypto.ErrNotConfigured):
		writeError(w, http.StatusBadGateway, "Vault setup required")
	case errors.Is(err, resolve.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.As(err, &rateLimitedErr):
		seconds := int(math.Ceil(rateLimitedErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Msg)
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &disabledErr):
		writeError(w, http.StatusForbidden, disabledErr.Error())
	default:
		writeError(w, http.StatusBadGateway, "Vault backend error")
	}
}

// writeAdminError maps admin-surface errors. Not-configured is a
// conflict here rather than a gateway error: the admin UI uses it to
// steer the operator to setup.
func writeAdminError(w http.ResponseWriter, err error) {
	var (
		validationErr  *admin.ValidationError
		handleTakenErr *admin.HandleTakenError
	)
	switch {
	case errors.Is(err, crypto.ErrNotConfigured):
		writeError(w, http.StatusConflict, "Vault setup required")
	case errors.Is(err, resolve.ErrNotRevealable):
		writeError(w, http.StatusForbidden, "This credential is set to inject-only and cannot be revealed.")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Msg)
	case errors.As(err, &handleTakenErr):
		writeError(w, http.StatusConflict, handleTakenErr.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		writeError(w, http.StatusInternalServerError, "Vault backend error")
	}
}
