package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/limiter"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/query"
	"github.com/and161185/kobo-sync/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	byKobo map[string]*model.User
	byID   map[string]*model.User

	registerErr error
	getErr      error
	touchErr    error
	listed      []query.UserFilter
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{byKobo: map[string]*model.User{}, byID: map[string]*model.User{}}
	for i := range users {
		u := users[i]
		f.byID[u.ID] = &u
		if u.KoboID != "" {
			f.byKobo[u.KoboID] = &u
		}
	}
	return f
}

func (f *fakeUsers) UpsertProfile(_ context.Context, p model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[p.ID]
	if !ok {
		u = &model.User{ID: p.ID}
		f.byID[p.ID] = u
	}
	if p.OwnerName != nil {
		u.OwnerName = *p.OwnerName
	}
	if p.ShopName != nil {
		u.ShopName = *p.ShopName
	}
	if p.State != nil {
		u.State = *p.State
	}
	return nil
}

func (f *fakeUsers) Register(_ context.Context, id string, r model.Registration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return false, f.registerErr
	}
	if u, ok := f.byKobo[r.KoboID]; ok {
		u.FirstName, u.Surname, u.BusinessName = r.FirstName, r.Surname, r.BusinessName
		u.Country, u.BusinessType = r.Country, r.BusinessType
		return false, nil
	}
	u := &model.User{ID: id, KoboID: r.KoboID, FirstName: r.FirstName, Surname: r.Surname,
		BusinessName: r.BusinessName, Country: r.Country, BusinessType: r.BusinessType,
		PIN: r.PIN, Role: model.RoleUser}
	f.byKobo[r.KoboID] = u
	f.byID[id] = u
	return true, nil
}

func (f *fakeUsers) GetByKoboID(_ context.Context, koboID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byKobo[koboID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) List(_ context.Context, fl query.UserFilter) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, fl)
	out := []model.User{}
	for _, u := range f.byKobo {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsers) update(koboID string, fn func(u *model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byKobo[koboID]
	if !ok {
		return errs.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUsers) SetPIN(_ context.Context, koboID, pin string) error {
	return f.update(koboID, func(u *model.User) { u.PIN = pin })
}

func (f *fakeUsers) SetRole(_ context.Context, koboID, role string) error {
	return f.update(koboID, func(u *model.User) { u.Role = role })
}

func (f *fakeUsers) SetPro(_ context.Context, koboID string, isPro bool) error {
	return f.update(koboID, func(u *model.User) { u.IsPro = isPro })
}

func (f *fakeUsers) TouchLogin(_ context.Context, userID string, info json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	u, ok := f.byID[userID]
	if !ok {
		return errs.ErrNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	u.DeviceInfo = info
	return nil
}

func (f *fakeUsers) Terminate(_ context.Context, koboID string) (model.Termination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byKobo[koboID]
	if !ok {
		return model.Termination{}, errs.ErrNotFound
	}
	delete(f.byKobo, koboID)
	delete(f.byID, u.ID)
	return model.Termination{UserID: u.ID}, nil
}

type fakeItems struct {
	mu    sync.Mutex
	rows  map[string]model.Item
	errOn map[string]error
}

var _ repository.ItemRepository = (*fakeItems)(nil)

func (f *fakeItems) Upsert(_ context.Context, it model.Item) (model.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errOn[it.ID]; err != nil {
		return model.OutcomeFailed, err
	}
	if f.rows == nil {
		f.rows = map[string]model.Item{}
	}
	cur, ok := f.rows[it.ID]
	if ok && cur.UserID != it.UserID {
		return model.OutcomeConflict, errs.ErrOwnershipConflict
	}
	if ok {
		cur.Name, cur.Price, cur.Quantity = it.Name, it.Price, it.Quantity
		f.rows[it.ID] = cur
	} else {
		f.rows[it.ID] = it
	}
	return model.OutcomeApplied, nil
}

func (f *fakeItems) ListByUser(_ context.Context, userID string) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Item{}
	for _, it := range f.rows {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeSales struct {
	mu   sync.Mutex
	rows map[string]model.Sale
	err  error
}

var _ repository.SaleRepository = (*fakeSales)(nil)

func (f *fakeSales) InsertIfAbsent(_ context.Context, s model.Sale) (model.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.OutcomeFailed, f.err
	}
	if f.rows == nil {
		f.rows = map[string]model.Sale{}
	}
	if cur, ok := f.rows[s.ID]; ok {
		if cur.UserID != s.UserID {
			return model.OutcomeConflict, errs.ErrOwnershipConflict
		}
		return model.OutcomeDuplicate, nil
	}
	f.rows[s.ID] = s
	return model.OutcomeApplied, nil
}

func (f *fakeSales) ListRecentByUser(_ context.Context, userID string, limit int) ([]model.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Sale{}
	for _, s := range f.rows {
		if s.UserID == userID && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeLogins struct {
	mu      sync.Mutex
	events  []model.LoginEvent
	listErr error
}

var _ repository.LoginRepository = (*fakeLogins)(nil)

func (f *fakeLogins) Append(_ context.Context, ev model.LoginEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeLogins) ListByKoboID(context.Context, string, int) ([]model.LoginEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.LoginEvent{}, f.events...), nil
}

type fakeReports struct {
	totals     model.Totals
	countries  []model.Bucket
	categories []model.Bucket
	sales      []model.DayValue
	signups    []model.DayValue
	activity   model.ActivityStats
	err        error

	totalsCalls int
	buckets     []int
}

var _ repository.ReportRepository = (*fakeReports)(nil)

func (f *fakeReports) Totals(context.Context) (model.Totals, error) {
	f.totalsCalls++
	return f.totals, f.err
}

func (f *fakeReports) Distribution(_ context.Context, dim repository.Dimension) ([]model.Bucket, error) {
	if dim == repository.DimCountry {
		return f.countries, nil
	}
	return f.categories, nil
}

func (f *fakeReports) SalesByDay(_ context.Context, n int) ([]model.DayValue, error) {
	f.buckets = append(f.buckets, n)
	return f.sales, nil
}

func (f *fakeReports) SignupsByDay(_ context.Context, n int) ([]model.DayValue, error) {
	f.buckets = append(f.buckets, n)
	return f.signups, nil
}

func (f *fakeReports) Activity(context.Context, string) (model.ActivityStats, error) {
	return f.activity, f.err
}

// fakeCache stores JSON like the Redis cache does.
type fakeCache struct {
	mu            sync.Mutex
	data          map[string][]byte
	getErr        error
	invalidations int
}

var _ ReportCache = (*fakeCache)(nil)

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, c.getErr
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	c.data = nil
	return nil
}

type fakeLimiter struct {
	allowOK     bool
	allowWait   time.Duration
	allowErr    error
	failBlocked bool
	failErr     error

	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return l.allowOK, l.allowWait, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func strp(s string) *string { return &s }
func i64p(v int64) *int64   { return &v }
