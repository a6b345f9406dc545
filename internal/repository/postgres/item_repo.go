package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
)

// ItemRepo implements ItemRepository using PostgreSQL.
type ItemRepo struct{ db *DB }

// NewItemRepo constructs an item repository.
func NewItemRepo(db *DB) *ItemRepo { return &ItemRepo{db: db} }

// Upsert inserts the item or overwrites name, price and quantity. An existing
// row owned by someone else is left untouched and reported as a conflict.
func (r *ItemRepo) Upsert(ctx context.Context, it model.Item) (model.Outcome, error) {
	const q = `
INSERT INTO items (id, user_id, name, price, quantity, is_service, category, cost_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
  name = COALESCE(EXCLUDED.name, items.name),
  price = COALESCE(EXCLUDED.price, items.price),
  quantity = COALESCE(EXCLUDED.quantity, items.quantity)
WHERE items.user_id = EXCLUDED.user_id`
	tag, err := r.db.Pool.Exec(ctx, q, it.ID, it.UserID, it.Name, it.Price, it.Quantity,
		it.IsService, it.Category, it.CostPrice)
	if isForeignKeyViolation(err) {
		return model.OutcomeFailed, fmt.Errorf("owner %q: %w", it.UserID, errs.ErrNotFound)
	}
	if err != nil {
		return model.OutcomeFailed, err
	}
	if tag.RowsAffected() == 0 {
		return model.OutcomeConflict, errs.ErrOwnershipConflict
	}
	return model.OutcomeApplied, nil
}

// ListByUser returns the owner's items ordered by name.
func (r *ItemRepo) ListByUser(ctx context.Context, userID string) ([]model.Item, error) {
	const q = `
SELECT id, COALESCE(user_id, ''), name, price, quantity, is_service, category, cost_price
FROM items
WHERE user_id = $1
ORDER BY name NULLS LAST, id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Item, 0)
	for rows.Next() {
		var it model.Item
		if err = rows.Scan(&it.ID, &it.UserID, &it.Name, &it.Price, &it.Quantity,
			&it.IsService, &it.Category, &it.CostPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
