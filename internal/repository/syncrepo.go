package repository

import (
	"context"

	"github.com/and161185/kobo-sync/internal/model"
)

// ItemRepository stores device-synced inventory items.
type ItemRepository interface {
	// Upsert inserts the item or overwrites name, price and quantity when the
	// existing row has the same owner.
	Upsert(ctx context.Context, it model.Item) (model.Outcome, error)
	// ListByUser returns all items of an owner.
	ListByUser(ctx context.Context, userID string) ([]model.Item, error)
}

// SaleRepository stores immutable sales facts.
type SaleRepository interface {
	// InsertIfAbsent stores the sale unless its identifier already exists.
	InsertIfAbsent(ctx context.Context, s model.Sale) (model.Outcome, error)
	// ListRecentByUser returns the newest sales of an owner.
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]model.Sale, error)
}

// LoginRepository is the append-only login audit trail.
type LoginRepository interface {
	// Append records one login attempt.
	Append(ctx context.Context, ev model.LoginEvent) error
	// ListByKoboID returns the newest attempts of a user; unknown ids yield an empty list.
	ListByKoboID(ctx context.Context, koboID string, limit int) ([]model.LoginEvent, error)
}

// Dimension is a categorical users column that reports may group by.
type Dimension string

const (
	DimCountry  Dimension = "country"
	DimCategory Dimension = "business_type"
)

// ReportRepository computes aggregates over the whole store.
type ReportRepository interface {
	Totals(ctx context.Context) (model.Totals, error)
	Distribution(ctx context.Context, dim Dimension) ([]model.Bucket, error)
	// SalesByDay returns daily revenue for the most recent buckets, newest first.
	SalesByDay(ctx context.Context, buckets int) ([]model.DayValue, error)
	// SignupsByDay returns daily registrations for the most recent buckets, newest first.
	SignupsByDay(ctx context.Context, buckets int) ([]model.DayValue, error)
	// Activity returns the raw engagement inputs of one user.
	Activity(ctx context.Context, userID string) (model.ActivityStats, error)
}
