package httpserver

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/query"
	"github.com/and161185/kobo-sync/internal/service"
)

// --- Sync ---

func (s *Server) syncProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.sync.UpsertProfile(r.Context(), req.toModel()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func (s *Server) syncItems(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Items == nil {
		s.fail(w, r, fmt.Errorf("items array required: %w", errs.ErrInvalidArgument))
		return
	}
	res, err := s.sync.SyncItems(r.Context(), req.UserID, decodeRows(req.Items, itemDTO.toModel))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(res))
}

func (s *Server) syncSales(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Sales == nil {
		s.fail(w, r, fmt.Errorf("sales array required: %w", errs.ErrInvalidArgument))
		return
	}
	res, err := s.sync.SyncSales(r.Context(), req.UserID, decodeRows(req.Sales, saleDTO.toModel))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(res))
}

// --- Auth ---

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.auth.Register(r.Context(), req.toModel())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if created {
		writeJSON(w, http.StatusCreated, statusResponse{Status: "success", Message: "User registered"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "User updated"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.auth.Login(r.Context(), service.LoginInput{
		KoboID:     req.KoboID,
		PIN:        req.PIN,
		IP:         clientIP(r),
		DeviceInfo: req.DeviceInfo,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{Status: "success", User: u})
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "error", Message: "Invalid credentials"})
	case errors.Is(err, errs.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, statusResponse{Status: "error", Message: "Too many attempts, try again later"})
	default:
		s.fail(w, r, err)
	}
}

// clientIP strips the port; RealIP has already applied forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- Admin ---

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	f, err := query.FilterFromValues(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	users, err := s.admin.ListUsers(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) userDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.admin.Details(r.Context(), chi.URLParam(r, "koboId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) loginHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.admin.LoginHistory(r.Context(), chi.URLParam(r, "koboId")))
}

func (s *Server) resetPIN(w http.ResponseWriter, r *http.Request) {
	var req resetPINRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.done(w, r, s.admin.ResetPIN(r.Context(), req.KoboID, req.NewPIN))
}

func (s *Server) terminate(w http.ResponseWriter, r *http.Request) {
	var req koboIDRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	_, err := s.admin.Terminate(r.Context(), req.KoboID)
	s.done(w, r, err)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.done(w, r, s.admin.UpdateRole(r.Context(), req.KoboID, req.Role))
}

func (s *Server) togglePro(w http.ResponseWriter, r *http.Request) {
	var req proRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.IsPro == nil {
		s.fail(w, r, fmt.Errorf("isPro required: %w", errs.ErrInvalidArgument))
		return
	}
	s.done(w, r, s.admin.SetPro(r.Context(), req.KoboID, *req.IsPro))
}

func (s *Server) activateSubscription(w http.ResponseWriter, r *http.Request) {
	var req koboIDRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.admin.SetPro(r.Context(), req.KoboID, true); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Subscription activated"})
}

// done writes {status:"success"} or the mapped error.
func (s *Server) done(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// --- Reports ---

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	t, err := s.reports.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Users: t.Users, Sales: t.Revenue})
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	s.report(w, r, func(rep model.Report) any { return toAnalyticsV1(rep) })
}

func (s *Server) analyticsV2(w http.ResponseWriter, r *http.Request) {
	s.report(w, r, func(rep model.Report) any { return toAnalyticsV2(rep) })
}

func (s *Server) report(w http.ResponseWriter, r *http.Request, shape func(model.Report) any) {
	rep, err := s.reports.Report(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shape(rep))
}
