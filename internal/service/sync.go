// Package service contains the application services behind the HTTP surface.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/repository"
)

// Row is one decoded element of a sync batch. Err is set when the element
// could not be decoded and must be reported as invalid; ID then carries
// whatever identifier could still be recovered from it.
type Row[T any] struct {
	Value T
	ID    string
	Err   error
}

// Invalidator drops cached reports after writes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SyncService applies device-originated batches.
type SyncService interface {
	// UpsertProfile inserts or merges one profile.
	UpsertProfile(ctx context.Context, p model.Profile) error
	// SyncItems applies every item independently and reports per-row outcomes.
	SyncItems(ctx context.Context, userID string, rows []Row[model.Item]) (model.BatchResult, error)
	// SyncSales stores every new sale and reports per-row outcomes.
	SyncSales(ctx context.Context, userID string, rows []Row[model.Sale]) (model.BatchResult, error)
}

type SyncServiceImpl struct {
	users    repository.UserRepository
	items    repository.ItemRepository
	sales    repository.SaleRepository
	cache    Invalidator
	log      *zap.Logger
	maxBatch int
}

// NewSyncService constructs SyncService with batch limits.
func NewSyncService(users repository.UserRepository, items repository.ItemRepository, sales repository.SaleRepository,
	cache Invalidator, log *zap.Logger, maxBatch int) *SyncServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &SyncServiceImpl{users: users, items: items, sales: sales, cache: cache, log: log, maxBatch: maxBatch}
}

// UpsertProfile validates the primary id and delegates the merge to the repository.
func (s *SyncServiceImpl) UpsertProfile(ctx context.Context, p model.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id: %w", errs.ErrInvalidArgument)
	}
	if err := s.users.UpsertProfile(ctx, p); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SyncItems applies items in order. A failing item never stops the rest.
func (s *SyncServiceImpl) SyncItems(ctx context.Context, userID string, rows []Row[model.Item]) (model.BatchResult, error) {
	if err := s.checkEnvelope(userID, len(rows)); err != nil {
		return model.BatchResult{}, err
	}
	res := applyBatch(ctx, rows,
		func(it model.Item) string { return it.ID },
		func(ctx context.Context, it model.Item) (model.Outcome, error) {
			if it.ID == "" {
				return model.OutcomeInvalid, fmt.Errorf("empty id: %w", errs.ErrInvalidArgument)
			}
			it.UserID = userID
			return s.items.Upsert(ctx, it)
		})
	s.finish(ctx, "items", userID, res)
	return res, nil
}

// SyncSales inserts sales that are not stored yet. Resent sales are
// reported as duplicates and left unchanged.
func (s *SyncServiceImpl) SyncSales(ctx context.Context, userID string, rows []Row[model.Sale]) (model.BatchResult, error) {
	if err := s.checkEnvelope(userID, len(rows)); err != nil {
		return model.BatchResult{}, err
	}
	res := applyBatch(ctx, rows,
		func(sale model.Sale) string { return sale.ID },
		func(ctx context.Context, sale model.Sale) (model.Outcome, error) {
			if sale.ID == "" {
				return model.OutcomeInvalid, fmt.Errorf("empty id: %w", errs.ErrInvalidArgument)
			}
			sale.UserID = userID
			return s.sales.InsertIfAbsent(ctx, sale)
		})
	s.finish(ctx, "sales", userID, res)
	return res, nil
}

func (s *SyncServiceImpl) checkEnvelope(userID string, n int) error {
	if userID == "" {
		return fmt.Errorf("empty userId: %w", errs.ErrInvalidArgument)
	}
	if n > s.maxBatch {
		return fmt.Errorf("batch too large (%d > %d): %w", n, s.maxBatch, errs.ErrInvalidArgument)
	}
	return nil
}

func (s *SyncServiceImpl) finish(ctx context.Context, kind, userID string, res model.BatchResult) {
	ok, failed := res.Counts()
	if failed > 0 {
		s.log.Warn("sync batch partially applied",
			zap.String("kind", kind), zap.String("user_id", userID),
			zap.Int("ok", ok), zap.Int("failed", failed))
	}
	for _, r := range res.Results {
		if r.Outcome == model.OutcomeApplied {
			s.invalidate(ctx)
			return
		}
	}
}

func (s *SyncServiceImpl) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("report cache invalidate", zap.Error(err))
	}
}

// applyBatch maps each row to an outcome. Rows left after the context ends
// are reported as failed without touching the store.
func applyBatch[T any](
	ctx context.Context, rows []Row[T], id func(T) string,
	apply func(context.Context, T) (model.Outcome, error),
) model.BatchResult {
	res := model.BatchResult{Results: make([]model.RowResult, 0, len(rows))}
	for i, row := range rows {
		r := model.RowResult{Index: i, ID: id(row.Value)}
		switch {
		case row.Err != nil:
			r.ID, r.Outcome, r.Error = row.ID, model.OutcomeInvalid, row.Err.Error()
		case ctx.Err() != nil:
			r.Outcome, r.Error = model.OutcomeFailed, ctx.Err().Error()
		default:
			outcome, err := apply(ctx, row.Value)
			r.Outcome = outcome
			if err != nil {
				r.Error = err.Error()
			}
		}
		res.Add(r)
	}
	return res
}
