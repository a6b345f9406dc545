package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/repository"
)

// ReportRepo implements ReportRepository using PostgreSQL.
type ReportRepo struct{ db *DB }

// NewReportRepo constructs a report repository.
func NewReportRepo(db *DB) *ReportRepo { return &ReportRepo{db: db} }

// Totals returns store-wide counts and the revenue sum.
func (r *ReportRepo) Totals(ctx context.Context) (model.Totals, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM users WHERE is_pro = TRUE),
  (SELECT COALESCE(SUM(total), 0)::BIGINT FROM sales),
  (SELECT COUNT(*) FROM sales),
  (SELECT COUNT(*) FROM items)`
	var t model.Totals
	err := r.db.Pool.QueryRow(ctx, q).Scan(&t.Users, &t.PremiumUsers, &t.Revenue, &t.Sales, &t.Items)
	return t, err
}

// Distribution counts users per value of dim, largest group first. Users
// with no value form a group keyed by nil.
func (r *ReportRepo) Distribution(ctx context.Context, dim repository.Dimension) ([]model.Bucket, error) {
	switch dim {
	case repository.DimCountry, repository.DimCategory:
	default:
		return nil, fmt.Errorf("dimension %q: %w", dim, errs.ErrInvalidArgument)
	}
	q := fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM users GROUP BY %[1]s ORDER BY COUNT(*) DESC, %[1]s`, dim)
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Bucket, 0)
	for rows.Next() {
		var b model.Bucket
		if err = rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SalesByDay returns revenue per calendar day for the most recent days that have sales.
func (r *ReportRepo) SalesByDay(ctx context.Context, buckets int) ([]model.DayValue, error) {
	const q = `
SELECT DATE_TRUNC('day', created_at) AS day, COALESCE(SUM(total), 0)::BIGINT
FROM sales
WHERE created_at IS NOT NULL
GROUP BY day
ORDER BY day DESC
LIMIT $1`
	return r.days(ctx, q, buckets)
}

// SignupsByDay returns registrations per calendar day for the most recent days that have any.
func (r *ReportRepo) SignupsByDay(ctx context.Context, buckets int) ([]model.DayValue, error) {
	const q = `
SELECT DATE_TRUNC('day', created_at) AS day, COUNT(*)
FROM users
WHERE created_at IS NOT NULL
GROUP BY day
ORDER BY day DESC
LIMIT $1`
	return r.days(ctx, q, buckets)
}

func (r *ReportRepo) days(ctx context.Context, q string, buckets int) ([]model.DayValue, error) {
	rows, err := r.db.Pool.Query(ctx, q, int64(buckets))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.DayValue, 0, buckets)
	for rows.Next() {
		var d model.DayValue
		if err = rows.Scan(&d.Day, &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Activity gathers the engagement inputs of one user. Active days count
// distinct calendar days with a sale or a login attempt.
func (r *ReportRepo) Activity(ctx context.Context, userID string) (model.ActivityStats, error) {
	const q = `
SELECT
  COUNT(*),
  MIN(created_at),
  MAX(created_at),
  (SELECT COUNT(DISTINCT DATE_TRUNC('day', at)) FROM (
     SELECT created_at AS at FROM sales WHERE user_id = $1
     UNION ALL
     SELECT lh.timestamp FROM login_history lh WHERE lh.user_id = $1
  ) active),
  COUNT(DISTINCT DATE_TRUNC('month', created_at))
FROM sales
WHERE user_id = $1`
	var a model.ActivityStats
	err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&a.SaleCount, &a.FirstSale, &a.LastSale, &a.DaysActive, &a.DistinctMonths)
	return a, err
}
