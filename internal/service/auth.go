package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/kobo-sync/internal/crypto"
	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/limiter"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/repository"
)

// LoginInput is one login attempt as received from a device.
type LoginInput struct {
	KoboID     string
	PIN        string
	IP         string
	DeviceInfo json.RawMessage
}

// MasterAdmin is the recovery credential that bypasses the store.
// An empty PIN disables it.
type MasterAdmin struct {
	KoboID string
	PIN    string
}

// AuthService defines registration and login.
type AuthService interface {
	// Register creates a user or merges identity fields by kobo_id.
	Register(ctx context.Context, r model.Registration) (created bool, err error)
	// Login verifies the credential, applies throttling and records the attempt.
	Login(ctx context.Context, in LoginInput) (*model.User, error)
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	logins repository.LoginRepository
	lim    limiter.Limiter
	cache  Invalidator
	master MasterAdmin
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, logins repository.LoginRepository, lim limiter.Limiter,
	cache Invalidator, master MasterAdmin, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, logins: logins, lim: lim, cache: cache, master: master, log: log, now: time.Now}
}

// Register hashes the PIN and stores the user under a fresh primary id.
// Existing accounts keep their PIN and role.
func (s *AuthServiceImpl) Register(ctx context.Context, r model.Registration) (bool, error) {
	if r.KoboID == "" || r.PIN == "" {
		return false, fmt.Errorf("koboId and pin are required: %w", errs.ErrInvalidArgument)
	}
	if r.Country == "" {
		r.Country = model.DefaultCountry
	}
	encoded, err := pkgcrypto.EncodePIN(r.PIN)
	if err != nil {
		return false, err
	}
	r.PIN = encoded

	uid, err := uuid.NewV4()
	if err != nil {
		return false, err
	}
	created, err := s.users.Register(ctx, uid.String(), r)
	if err != nil {
		return false, err
	}
	if created {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.Warn("report cache invalidate", zap.Error(err))
		}
	}
	return created, nil
}

// Login authenticates by (kobo_id, PIN) with rate limiting by (kobo_id, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, in LoginInput) (*model.User, error) {
	if u, ok := s.masterLogin(in); ok {
		return u, nil
	}
	if in.KoboID == "" || in.PIN == "" {
		return nil, errs.ErrUnauthorized
	}

	ipHash := limiter.HashIP(in.IP)
	allowed, wait, err := s.lim.Allow(ctx, in.KoboID, ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("retry in %s: %w", wait.Round(time.Second), errs.ErrRateLimited)
	}

	u, err := s.users.GetByKoboID(ctx, in.KoboID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, s.fail(ctx, in.KoboID, ipHash)
	}
	if err != nil {
		return nil, err
	}

	ok, legacy := pkgcrypto.VerifyPIN(in.PIN, u.PIN)
	s.record(ctx, model.LoginEvent{UserID: u.ID, IPAddress: in.IP, Successful: ok, DeviceInfo: in.DeviceInfo})
	if !ok {
		return nil, s.fail(ctx, in.KoboID, ipHash)
	}

	if err := s.lim.Success(ctx, in.KoboID, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.String("kobo_id", in.KoboID), zap.Error(err))
	}
	if err := s.users.TouchLogin(ctx, u.ID, in.DeviceInfo); err != nil {
		return nil, err
	}
	if legacy {
		s.upgradePIN(ctx, in.KoboID, in.PIN)
	}

	now := s.now()
	u.LastLogin = &now
	if len(in.DeviceInfo) > 0 {
		u.DeviceInfo = in.DeviceInfo
	}
	u.PIN = ""
	return u, nil
}

func (s *AuthServiceImpl) masterLogin(in LoginInput) (*model.User, bool) {
	if s.master.PIN == "" || in.KoboID != s.master.KoboID {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(in.PIN), []byte(s.master.PIN)) != 1 {
		return nil, false
	}
	now := s.now()
	return &model.User{
		ID:            "master-admin",
		KoboID:        s.master.KoboID,
		FirstName:     "Master",
		Surname:       "Admin",
		BusinessName:  "Kobo HQ",
		Country:       model.DefaultCountry,
		BusinessType:  "Headquarters",
		Role:          model.RoleAdmin,
		AccountStatus: model.StatusActive,
		CreatedAt:     &now,
	}, true
}

// fail counts the failure and returns the error the caller should see.
func (s *AuthServiceImpl) fail(ctx context.Context, koboID string, ipHash []byte) error {
	blocked, _, err := s.lim.Failure(ctx, koboID, ipHash)
	if err != nil {
		s.log.Warn("limiter failure", zap.String("kobo_id", koboID), zap.Error(err))
		return errs.ErrUnauthorized
	}
	if blocked {
		return errs.ErrRateLimited
	}
	return errs.ErrUnauthorized
}

func (s *AuthServiceImpl) record(ctx context.Context, ev model.LoginEvent) {
	if err := s.logins.Append(ctx, ev); err != nil {
		s.log.Warn("login history append", zap.String("user_id", ev.UserID), zap.Error(err))
	}
}

func (s *AuthServiceImpl) upgradePIN(ctx context.Context, koboID, pin string) {
	encoded, err := pkgcrypto.EncodePIN(pin)
	if err == nil {
		err = s.users.SetPIN(ctx, koboID, encoded)
	}
	if err != nil {
		s.log.Warn("legacy pin upgrade", zap.String("kobo_id", koboID), zap.Error(err))
	}
}
