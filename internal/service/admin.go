package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/kobo-sync/internal/crypto"
	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/query"
	"github.com/and161185/kobo-sync/internal/repository"
)

const (
	// RecentSalesLimit caps the sales returned with user details.
	RecentSalesLimit = 50
	// LoginHistoryLimit caps the login history listing.
	LoginHistoryLimit = 50
)

// AdminService defines account administration by kobo_id.
type AdminService interface {
	ListUsers(ctx context.Context, f query.UserFilter) ([]model.User, error)
	Details(ctx context.Context, koboID string) (*model.UserDetails, error)
	// LoginHistory never fails; unknown users and storage errors yield an empty list.
	LoginHistory(ctx context.Context, koboID string) []model.LoginEvent
	ResetPIN(ctx context.Context, koboID, newPIN string) error
	Terminate(ctx context.Context, koboID string) (model.Termination, error)
	UpdateRole(ctx context.Context, koboID, role string) error
	SetPro(ctx context.Context, koboID string, isPro bool) error
}

type AdminServiceImpl struct {
	users   repository.UserRepository
	items   repository.ItemRepository
	sales   repository.SaleRepository
	logins  repository.LoginRepository
	reports repository.ReportRepository
	cache   Invalidator
	log     *zap.Logger
}

// NewAdminService constructs AdminService.
func NewAdminService(users repository.UserRepository, items repository.ItemRepository, sales repository.SaleRepository,
	logins repository.LoginRepository, reports repository.ReportRepository, cache Invalidator, log *zap.Logger) *AdminServiceImpl {
	return &AdminServiceImpl{users: users, items: items, sales: sales, logins: logins, reports: reports, cache: cache, log: log}
}

// ListUsers returns users matching the filter, newest first.
func (s *AdminServiceImpl) ListUsers(ctx context.Context, f query.UserFilter) ([]model.User, error) {
	return s.users.List(ctx, f)
}

// Details assembles the user, their items, recent sales and engagement.
func (s *AdminServiceImpl) Details(ctx context.Context, koboID string) (*model.UserDetails, error) {
	u, err := s.users.GetByKoboID(ctx, koboID)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	sales, err := s.sales.ListRecentByUser(ctx, u.ID, RecentSalesLimit)
	if err != nil {
		return nil, fmt.Errorf("sales: %w", err)
	}
	act, err := s.reports.Activity(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	return &model.UserDetails{
		User:       *u,
		Items:      items,
		Sales:      sales,
		Engagement: EngagementFrom(act, len(items)),
	}, nil
}

// LoginHistory returns the newest attempts of a user.
func (s *AdminServiceImpl) LoginHistory(ctx context.Context, koboID string) []model.LoginEvent {
	events, err := s.logins.ListByKoboID(ctx, koboID, LoginHistoryLimit)
	if err != nil {
		s.log.Error("login history", zap.String("kobo_id", koboID), zap.Error(err))
		return []model.LoginEvent{}
	}
	return events
}

// ResetPIN stores a freshly hashed PIN.
func (s *AdminServiceImpl) ResetPIN(ctx context.Context, koboID, newPIN string) error {
	if koboID == "" || newPIN == "" {
		return fmt.Errorf("koboId and newPin are required: %w", errs.ErrInvalidArgument)
	}
	encoded, err := pkgcrypto.EncodePIN(newPIN)
	if err != nil {
		return err
	}
	return s.users.SetPIN(ctx, koboID, encoded)
}

// Terminate deletes the user and everything it owns.
func (s *AdminServiceImpl) Terminate(ctx context.Context, koboID string) (model.Termination, error) {
	if koboID == "" {
		return model.Termination{}, fmt.Errorf("koboId is required: %w", errs.ErrInvalidArgument)
	}
	res, err := s.users.Terminate(ctx, koboID)
	if err != nil {
		return model.Termination{}, err
	}
	s.log.Info("user terminated",
		zap.String("kobo_id", koboID), zap.String("user_id", res.UserID),
		zap.Int64("items", res.Items), zap.Int64("sales", res.Sales), zap.Int64("login_events", res.LoginEvents))
	s.invalidate(ctx)
	return res, nil
}

// UpdateRole changes the role to one of user, admin or agent.
func (s *AdminServiceImpl) UpdateRole(ctx context.Context, koboID, role string) error {
	switch role {
	case model.RoleUser, model.RoleAdmin, model.RoleAgent:
	default:
		return fmt.Errorf("role %q: %w", role, errs.ErrInvalidArgument)
	}
	if koboID == "" {
		return fmt.Errorf("koboId is required: %w", errs.ErrInvalidArgument)
	}
	return s.users.SetRole(ctx, koboID, role)
}

// SetPro changes the subscription flag.
func (s *AdminServiceImpl) SetPro(ctx context.Context, koboID string, isPro bool) error {
	if koboID == "" {
		return fmt.Errorf("koboId is required: %w", errs.ErrInvalidArgument)
	}
	if err := s.users.SetPro(ctx, koboID, isPro); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *AdminServiceImpl) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("report cache invalidate", zap.Error(err))
	}
}
