// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the referenced user (or row) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a missing or malformed required field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidFilter indicates a search filter value outside its vocabulary.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation not absorbed by a conflict policy.
	ErrAlreadyExists = errors.New("already exists")

	// ErrOwnershipConflict indicates a synced identifier already belongs to another owner.
	ErrOwnershipConflict = errors.New("identifier owned by another user")
)

// Kind returns the machine-readable error kind exposed to API callers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidFilter):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrOwnershipConflict):
		return "conflict"
	default:
		return "storage"
	}
}
