package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/kobo-sync/internal/cache"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/repository"
)

// Trend lengths in day buckets.
const (
	SalesTrendDays  = 7
	SignupTrendDays = 30
)

// ClassifyReadiness maps distinct months with sales to a loan readiness tier.
func ClassifyReadiness(months int64) model.Readiness {
	switch {
	case months >= 3:
		return model.ReadinessReady
	case months >= 1:
		return model.ReadinessDeveloping
	default:
		return model.ReadinessNeedData
	}
}

// EngagementFrom derives the engagement summary from raw activity.
func EngagementFrom(a model.ActivityStats, items int) model.Engagement {
	return model.Engagement{
		TotalSales: a.SaleCount,
		TotalItems: items,
		FirstSale:  a.FirstSale,
		LastSale:   a.LastSale,
		DaysActive: a.DaysActive,
		LoanReadiness: model.LoanReadiness{
			Score:        ClassifyReadiness(a.DistinctMonths),
			MonthsOfData: a.DistinctMonths,
		},
	}
}

// AverageSale is revenue per sale rounded to two places, zero for an empty store.
func AverageSale(t model.Totals) decimal.Decimal {
	if t.Sales == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(t.Revenue).DivRound(decimal.NewFromInt(t.Sales), 2)
}

// ReportCache stores computed reports.
type ReportCache interface {
	Invalidator
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// ReportService computes store-wide aggregates.
type ReportService interface {
	Stats(ctx context.Context) (model.Totals, error)
	Report(ctx context.Context) (model.Report, error)
}

type ReportServiceImpl struct {
	repo  repository.ReportRepository
	cache ReportCache
	log   *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(repo repository.ReportRepository, c ReportCache, log *zap.Logger) *ReportServiceImpl {
	return &ReportServiceImpl{repo: repo, cache: c, log: log}
}

// Stats returns the flat totals.
func (s *ReportServiceImpl) Stats(ctx context.Context) (model.Totals, error) {
	var t model.Totals
	if s.cached(ctx, cache.KeyStats, &t) {
		return t, nil
	}
	t, err := s.repo.Totals(ctx)
	if err != nil {
		return model.Totals{}, err
	}
	s.store(ctx, cache.KeyStats, t)
	return t, nil
}

// Report returns totals, distributions and trends.
func (s *ReportServiceImpl) Report(ctx context.Context) (model.Report, error) {
	var rep model.Report
	if s.cached(ctx, cache.KeyReport, &rep) {
		return rep, nil
	}

	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return model.Report{}, fmt.Errorf("totals: %w", err)
	}
	countries, err := s.repo.Distribution(ctx, repository.DimCountry)
	if err != nil {
		return model.Report{}, fmt.Errorf("countries: %w", err)
	}
	categories, err := s.repo.Distribution(ctx, repository.DimCategory)
	if err != nil {
		return model.Report{}, fmt.Errorf("categories: %w", err)
	}
	salesTrend, err := s.repo.SalesByDay(ctx, SalesTrendDays)
	if err != nil {
		return model.Report{}, fmt.Errorf("sales trend: %w", err)
	}
	signupTrend, err := s.repo.SignupsByDay(ctx, SignupTrendDays)
	if err != nil {
		return model.Report{}, fmt.Errorf("signup trend: %w", err)
	}

	rep = model.Report{
		Totals:      totals,
		AverageSale: AverageSale(totals),
		Countries:   countries,
		Categories:  categories,
		SalesTrend:  salesTrend,
		SignupTrend: signupTrend,
	}
	s.store(ctx, cache.KeyReport, rep)
	return rep, nil
}

// cached reports a hit. Cache errors degrade to a miss.
func (s *ReportServiceImpl) cached(ctx context.Context, key string, dst any) bool {
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn("report cache get", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *ReportServiceImpl) store(ctx context.Context, key string, v any) {
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.log.Warn("report cache set", zap.String("key", key), zap.Error(err))
	}
}
