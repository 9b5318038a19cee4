// internal/errors/errors.go
package errors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// Sentinel errors for the discovery core. Handlers map these onto HTTP
// status codes; services wrap them with %w so errors.Is keeps working.
var (
	// ErrNotFound: the viewer or target profile does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrIneligible: the profile is incomplete or banned.
	ErrIneligible = errors.New("profile not eligible for discovery")

	// ErrEntitlementRequired: the feature is gated behind an active premium window.
	ErrEntitlementRequired = errors.New("premium entitlement required")

	// ErrRewindUnavailable: no rewind slot, or the remembered target is gone.
	ErrRewindUnavailable = errors.New("rewind unavailable")

	// ErrStaleReference: the acted-on target vanished between presentation and
	// reaction. Callers advance to the next candidate instead of surfacing it.
	ErrStaleReference = errors.New("stale candidate reference")

	// ErrThrottled: the per-user minimum inter-event spacing was violated.
	ErrThrottled = errors.New("too many requests")

	ErrInvalidArgument = errors.New("invalid argument")
)

// HTTPStatus converts repo/service errors into an HTTP status code and a
// stable machine-readable code. Keeps handlers clean by centralizing mapping.
func HTTPStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, ErrStaleReference):
		return http.StatusNotFound, "TARGET_GONE"

	case errors.Is(err, ErrIneligible):
		return http.StatusForbidden, "PROFILE_INCOMPLETE_OR_BANNED"

	case errors.Is(err, ErrEntitlementRequired):
		return http.StatusPaymentRequired, "PREMIUM_REQUIRED"

	case errors.Is(err, ErrRewindUnavailable):
		return http.StatusConflict, "REWIND_UNAVAILABLE"

	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests, "TOO_FAST"

	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, "VALIDATION_ERROR"

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"

	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
