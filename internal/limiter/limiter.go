// Package limiter throttles login attempts per account and client address.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login may be attempted and, if not, how long to wait.
	Allow(ctx context.Context, koboID string, ipHash []byte) (bool, time.Duration, error)
	// Success clears the failure streak.
	Success(ctx context.Context, koboID string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a block.
	Failure(ctx context.Context, koboID string, ipHash []byte) (bool, time.Duration, error)
}
