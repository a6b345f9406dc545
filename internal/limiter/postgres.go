package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of a pgx pool the limiter uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Policy bounds failed attempts: MaxFails failures within Window block the
// pair for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// PG is a PostgreSQL-backed limiter keyed by (kobo_id, ip hash).
type PG struct {
	db     Querier
	policy Policy
	now    func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(db Querier, p Policy) *PG {
	return &PG{db: db, policy: p, now: time.Now}
}

// HashIP returns a stable digest so raw client addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether a login is currently permitted.
func (l *PG) Allow(ctx context.Context, koboID string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE kobo_id = $1 AND ip_hash = $2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, koboID, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if wait := blockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success resets the counters of the pair.
func (l *PG) Success(ctx context.Context, koboID string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (kobo_id, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', now())
ON CONFLICT (kobo_id, ip_hash)
DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`
	_, err := l.db.Exec(ctx, q, koboID, ipHash)
	return err
}

// Failure counts a failed attempt. The streak restarts when the previous
// failure is older than the window. Once the returned count reaches MaxFails a
// follow-up UPDATE sets blocked_until.
func (l *PG) Failure(ctx context.Context, koboID string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter AS a (kobo_id, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (kobo_id, ip_hash) DO UPDATE SET
  fail_count = CASE WHEN now() - a.updated_at > $3::interval THEN 1 ELSE a.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	const block = `UPDATE auth_limiter SET blocked_until = $3 WHERE kobo_id = $1 AND ip_hash = $2`

	var fails int
	if err := l.db.QueryRow(ctx, q, koboID, ipHash, l.policy.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}
	if _, err := l.db.Exec(ctx, block, koboID, ipHash, l.now().Add(l.policy.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.policy.BlockFor, nil
}
