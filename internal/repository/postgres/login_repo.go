package postgres

import (
	"context"
	"encoding/json"

	"github.com/and161185/kobo-sync/internal/model"
)

// LoginRepo implements LoginRepository using PostgreSQL.
type LoginRepo struct{ db *DB }

// NewLoginRepo constructs a login history repository.
func NewLoginRepo(db *DB) *LoginRepo { return &LoginRepo{db: db} }

// Append records one attempt stamped with the server clock.
func (r *LoginRepo) Append(ctx context.Context, ev model.LoginEvent) error {
	const q = `
INSERT INTO login_history (user_id, ip_address, successful, device_info)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, ev.UserID, ev.IPAddress, ev.Successful, []byte(ev.DeviceInfo))
	return err
}

// ListByKoboID returns the newest attempts for the user with the given kobo_id.
func (r *LoginRepo) ListByKoboID(ctx context.Context, koboID string, limit int) ([]model.LoginEvent, error) {
	const q = `
SELECT lh.id, lh.user_id, lh.timestamp, COALESCE(lh.ip_address, ''), COALESCE(lh.successful, FALSE), lh.device_info
FROM login_history lh
JOIN users u ON u.id = lh.user_id
WHERE u.kobo_id = $1
ORDER BY lh.timestamp DESC NULLS LAST, lh.id DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, koboID, int64(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.LoginEvent, 0)
	for rows.Next() {
		var (
			ev     model.LoginEvent
			device []byte
		)
		if err = rows.Scan(&ev.ID, &ev.UserID, &ev.Timestamp, &ev.IPAddress, &ev.Successful, &device); err != nil {
			return nil, err
		}
		if len(device) > 0 {
			ev.DeviceInfo = json.RawMessage(device)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
