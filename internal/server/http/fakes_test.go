package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/query"
	"github.com/and161185/kobo-sync/internal/service"
)

type fakeSync struct {
	profile model.Profile
	userID  string
	items   []service.Row[model.Item]
	sales   []service.Row[model.Sale]
	err     error
}

func (f *fakeSync) UpsertProfile(_ context.Context, p model.Profile) error {
	f.profile = p
	return f.err
}

func (f *fakeSync) SyncItems(_ context.Context, userID string, rows []service.Row[model.Item]) (model.BatchResult, error) {
	f.userID, f.items = userID, rows
	if f.err != nil {
		return model.BatchResult{}, f.err
	}
	var res model.BatchResult
	for i, r := range rows {
		if r.Err != nil {
			res.Add(model.RowResult{Index: i, ID: r.ID, Outcome: model.OutcomeInvalid, Error: r.Err.Error()})
			continue
		}
		res.Add(model.RowResult{Index: i, ID: r.Value.ID, Outcome: model.OutcomeApplied})
	}
	return res, nil
}

func (f *fakeSync) SyncSales(_ context.Context, userID string, rows []service.Row[model.Sale]) (model.BatchResult, error) {
	f.userID, f.sales = userID, rows
	if f.err != nil {
		return model.BatchResult{}, f.err
	}
	var res model.BatchResult
	for i, r := range rows {
		res.Add(model.RowResult{Index: i, ID: r.Value.ID, Outcome: model.OutcomeDuplicate})
	}
	return res, nil
}

type fakeAuth struct {
	reg     model.Registration
	created bool
	login   service.LoginInput
	user    *model.User
	err     error
}

func (f *fakeAuth) Register(_ context.Context, r model.Registration) (bool, error) {
	f.reg = r
	return f.created, f.err
}

func (f *fakeAuth) Login(_ context.Context, in service.LoginInput) (*model.User, error) {
	f.login = in
	return f.user, f.err
}

type fakeAdmin struct {
	filter  query.UserFilter
	users   []model.User
	details *model.UserDetails
	history []model.LoginEvent
	koboID  string
	pin     string
	role    string
	isPro   *bool
	err     error
	panics  bool
}

func (f *fakeAdmin) ListUsers(_ context.Context, flt query.UserFilter) ([]model.User, error) {
	if f.panics {
		panic("boom")
	}
	f.filter = flt
	return f.users, f.err
}

func (f *fakeAdmin) Details(_ context.Context, koboID string) (*model.UserDetails, error) {
	f.koboID = koboID
	return f.details, f.err
}

func (f *fakeAdmin) LoginHistory(_ context.Context, koboID string) []model.LoginEvent {
	f.koboID = koboID
	if f.history == nil {
		return []model.LoginEvent{}
	}
	return f.history
}

func (f *fakeAdmin) ResetPIN(_ context.Context, koboID, pin string) error {
	f.koboID, f.pin = koboID, pin
	return f.err
}

func (f *fakeAdmin) Terminate(_ context.Context, koboID string) (model.Termination, error) {
	f.koboID = koboID
	return model.Termination{}, f.err
}

func (f *fakeAdmin) UpdateRole(_ context.Context, koboID, role string) error {
	f.koboID, f.role = koboID, role
	return f.err
}

func (f *fakeAdmin) SetPro(_ context.Context, koboID string, isPro bool) error {
	f.koboID, f.isPro = koboID, &isPro
	return f.err
}

type fakeReports struct {
	totals model.Totals
	report model.Report
	err    error
}

func (f *fakeReports) Stats(context.Context) (model.Totals, error)  { return f.totals, f.err }
func (f *fakeReports) Report(context.Context) (model.Report, error) { return f.report, f.err }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

var errStore = errors.New("connection reset")

type harness struct {
	sync    *fakeSync
	auth    *fakeAuth
	admin   *fakeAdmin
	reports *fakeReports
	ping    *fakePinger
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sync:    &fakeSync{},
		auth:    &fakeAuth{},
		admin:   &fakeAdmin{},
		reports: &fakeReports{},
		ping:    &fakePinger{},
	}
	srv := New(h.sync, h.auth, h.admin, h.reports, h.ping, zaptest.NewLogger(t))
	h.handler = srv.Router(Options{})
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}
