package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/jackc/pgx/v5"
)

// SaleRepo implements SaleRepository using PostgreSQL.
type SaleRepo struct{ db *DB }

// NewSaleRepo constructs a sale repository.
func NewSaleRepo(db *DB) *SaleRepo { return &SaleRepo{db: db} }

// InsertIfAbsent stores a sale once. A repeated identifier from the same
// owner is a duplicate; one from another owner is a conflict.
func (r *SaleRepo) InsertIfAbsent(ctx context.Context, s model.Sale) (model.Outcome, error) {
	const ins = `
INSERT INTO sales (id, user_id, item_id, item_name, total, quantity, payment_method, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`
	const owner = `SELECT COALESCE(user_id, '') FROM sales WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, ins, s.ID, s.UserID, s.ItemID, s.ItemName, s.Total,
		s.Quantity, s.PaymentMethod, s.CreatedAt)
	if isForeignKeyViolation(err) {
		return model.OutcomeFailed, fmt.Errorf("owner %q: %w", s.UserID, errs.ErrNotFound)
	}
	if err != nil {
		return model.OutcomeFailed, err
	}
	if tag.RowsAffected() == 1 {
		return model.OutcomeApplied, nil
	}

	var stored string
	if err = r.db.Pool.QueryRow(ctx, owner, s.ID).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Deleted between the two statements; the device should retry.
			return model.OutcomeFailed, fmt.Errorf("sale %q vanished: %w", s.ID, errs.ErrNotFound)
		}
		return model.OutcomeFailed, err
	}
	if stored != s.UserID {
		return model.OutcomeConflict, errs.ErrOwnershipConflict
	}
	return model.OutcomeDuplicate, nil
}

// ListRecentByUser returns up to limit of the owner's newest sales.
func (r *SaleRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]model.Sale, error) {
	const q = `
SELECT id, COALESCE(user_id, ''), item_id, item_name, total, quantity, payment_method, created_at
FROM sales
WHERE user_id = $1
ORDER BY created_at DESC NULLS LAST
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, int64(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Sale, 0)
	for rows.Next() {
		var s model.Sale
		if err = rows.Scan(&s.ID, &s.UserID, &s.ItemID, &s.ItemName, &s.Total, &s.Quantity,
			&s.PaymentMethod, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
