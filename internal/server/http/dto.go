package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/service"
)

// Amount and quantity columns are INT.
var (
	minWhole = decimal.NewFromInt(math.MinInt32)
	maxWhole = decimal.NewFromInt(math.MaxInt32)
)

// wholeNumber accepts integral JSON numbers or numeric strings, so 1500,
// 1500.0 and "1500" all decode to 1500. Fractions and values outside the
// column range are rejected.
type wholeNumber int64

func (n *wholeNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	if !d.IsInteger() {
		return fmt.Errorf("fractional amount: %s", s)
	}
	if d.LessThan(minWhole) || d.GreaterThan(maxWhole) {
		return fmt.Errorf("amount %s outside %s..%s", s, minWhole, maxWhole)
	}
	*n = wholeNumber(d.IntPart())
	return nil
}

func (n *wholeNumber) ptr() *int64 {
	if n == nil {
		return nil
	}
	v := int64(*n)
	return &v
}

// deviceLayouts are the timestamp shapes device clocks send. Zone-less
// values are taken as UTC.
var deviceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// deviceTime is a client-supplied timestamp: an ISO-8601 string or epoch milliseconds.
type deviceTime time.Time

func (t *deviceTime) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] != '"' {
		ms, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp: %s", b)
		}
		*t = deviceTime(time.UnixMilli(ms).UTC())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range deviceLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			*t = deviceTime(v)
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *deviceTime) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := time.Time(*t)
	return &v
}

type profileRequest struct {
	ID           string  `json:"id"`
	OwnerName    *string `json:"ownerName"`
	ShopName     *string `json:"shopName"`
	PhoneNumber  *string `json:"phoneNumber"`
	State        *string `json:"state"`
	City         *string `json:"city"`
	BusinessType *string `json:"businessType"`
}

func (p profileRequest) toModel() model.Profile {
	return model.Profile{ID: p.ID, OwnerName: p.OwnerName, ShopName: p.ShopName, Phone: p.PhoneNumber,
		State: p.State, City: p.City, BusinessType: p.BusinessType}
}

type batchRequest struct {
	UserID string            `json:"userId"`
	Items  []json.RawMessage `json:"items"`
	Sales  []json.RawMessage `json:"sales"`
}

type itemDTO struct {
	ID        string       `json:"id"`
	Name      *string      `json:"name"`
	Price     *wholeNumber `json:"price"`
	Quantity  *wholeNumber `json:"quantity"`
	IsService *bool        `json:"isService"`
	Category  *string      `json:"category"`
	CostPrice *wholeNumber `json:"costPrice"`
}

func (d itemDTO) toModel() model.Item {
	return model.Item{ID: d.ID, Name: d.Name, Price: d.Price.ptr(), Quantity: d.Quantity.ptr(),
		IsService: d.IsService, Category: d.Category, CostPrice: d.CostPrice.ptr()}
}

type saleDTO struct {
	ID            string       `json:"id"`
	ItemID        *string      `json:"itemId"`
	ItemName      *string      `json:"itemName"`
	Total         *wholeNumber `json:"total"`
	Quantity      *wholeNumber `json:"quantity"`
	PaymentMethod *string      `json:"paymentMethod"`
	Date          *deviceTime  `json:"date"`
}

func (d saleDTO) toModel() model.Sale {
	return model.Sale{ID: d.ID, ItemID: d.ItemID, ItemName: d.ItemName, Total: d.Total.ptr(),
		Quantity: d.Quantity.ptr(), PaymentMethod: d.PaymentMethod, CreatedAt: d.Date.ptr()}
}

// decodeRows decodes each element on its own so one bad element does not
// reject the batch.
func decodeRows[D, T any](raw []json.RawMessage, conv func(D) T) []service.Row[T] {
	rows := make([]service.Row[T], len(raw))
	for i, el := range raw {
		var d D
		dec := json.NewDecoder(bytes.NewReader(el))
		if err := dec.Decode(&d); err != nil {
			var probe struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(el, &probe)
			rows[i] = service.Row[T]{ID: probe.ID, Err: err}
			continue
		}
		rows[i] = service.Row[T]{Value: conv(d)}
	}
	return rows
}

type batchResponse struct {
	Status  string            `json:"status"`
	Applied int               `json:"applied"`
	Failed  int               `json:"failed"`
	Results []model.RowResult `json:"results"`
}

func toBatchResponse(res model.BatchResult) batchResponse {
	ok, failed := res.Counts()
	results := res.Results
	if results == nil {
		results = []model.RowResult{}
	}
	return batchResponse{Status: res.Status(), Applied: ok, Failed: failed, Results: results}
}

type registerRequest struct {
	KoboID       string      `json:"koboId"`
	FirstName    string      `json:"firstName"`
	Surname      string      `json:"surname"`
	BusinessName string      `json:"businessName"`
	PIN          string      `json:"pin"`
	Country      string      `json:"country"`
	BusinessType string      `json:"businessType"`
	CreatedAt    *deviceTime `json:"createdAt"`
}

func (r registerRequest) toModel() model.Registration {
	return model.Registration{KoboID: r.KoboID, FirstName: r.FirstName, Surname: r.Surname,
		BusinessName: r.BusinessName, PIN: r.PIN, Country: r.Country, BusinessType: r.BusinessType,
		CreatedAt: r.CreatedAt.ptr()}
}

type loginRequest struct {
	KoboID     string          `json:"koboId"`
	PIN        string          `json:"pin"`
	DeviceInfo json.RawMessage `json:"deviceInfo"`
}

type loginResponse struct {
	Status string      `json:"status"`
	User   *model.User `json:"user"`
}

type koboIDRequest struct {
	KoboID string `json:"koboId"`
}

type resetPINRequest struct {
	KoboID string `json:"koboId"`
	NewPIN string `json:"newPin"`
}

type roleRequest struct {
	KoboID string `json:"koboId"`
	Role   string `json:"role"`
}

type proRequest struct {
	KoboID string `json:"koboId"`
	IsPro  *bool  `json:"isPro"`
}

type statsResponse struct {
	Users int64 `json:"users"`
	Sales int64 `json:"sales"`
}

type dailyTotal struct {
	Day        time.Time `json:"day"`
	DailyTotal int64     `json:"daily_total"`
}

type dailyCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

type analyticsV1 struct {
	Summary struct {
		TotalUsers   int64 `json:"totalUsers"`
		TotalRevenue int64 `json:"totalRevenue"`
		TotalSales   int64 `json:"totalSales"`
		TotalItems   int64 `json:"totalItems"`
	} `json:"summary"`
	SalesHistory []dailyTotal `json:"salesHistory"`
}

type countryBucket struct {
	Country *string `json:"country"`
	Count   int64   `json:"count"`
}

type categoryBucket struct {
	BusinessType *string `json:"business_type"`
	Count        int64   `json:"count"`
}

type analyticsV2 struct {
	Summary struct {
		TotalUsers   int64           `json:"totalUsers"`
		PremiumUsers int64           `json:"premiumUsers"`
		TotalRevenue int64           `json:"totalRevenue"`
		TotalSales   int64           `json:"totalSales"`
		TotalItems   int64           `json:"totalItems"`
		AverageSale  decimal.Decimal `json:"averageSale"`
	} `json:"summary"`
	Distribution struct {
		Countries  []countryBucket  `json:"countries"`
		Categories []categoryBucket `json:"categories"`
	} `json:"distribution"`
	Trends struct {
		Sales   []dailyTotal `json:"sales"`
		Signups []dailyCount `json:"signups"`
	} `json:"trends"`
}

func toAnalyticsV1(rep model.Report) analyticsV1 {
	var out analyticsV1
	out.Summary.TotalUsers = rep.Totals.Users
	out.Summary.TotalRevenue = rep.Totals.Revenue
	out.Summary.TotalSales = rep.Totals.Sales
	out.Summary.TotalItems = rep.Totals.Items
	out.SalesHistory = dailyTotals(rep.SalesTrend)
	return out
}

func toAnalyticsV2(rep model.Report) analyticsV2 {
	var out analyticsV2
	out.Summary.TotalUsers = rep.Totals.Users
	out.Summary.PremiumUsers = rep.Totals.PremiumUsers
	out.Summary.TotalRevenue = rep.Totals.Revenue
	out.Summary.TotalSales = rep.Totals.Sales
	out.Summary.TotalItems = rep.Totals.Items
	out.Summary.AverageSale = rep.AverageSale

	out.Distribution.Countries = make([]countryBucket, 0, len(rep.Countries))
	for _, b := range rep.Countries {
		out.Distribution.Countries = append(out.Distribution.Countries, countryBucket{Country: b.Key, Count: b.Count})
	}
	out.Distribution.Categories = make([]categoryBucket, 0, len(rep.Categories))
	for _, b := range rep.Categories {
		out.Distribution.Categories = append(out.Distribution.Categories, categoryBucket{BusinessType: b.Key, Count: b.Count})
	}

	out.Trends.Sales = dailyTotals(rep.SalesTrend)
	out.Trends.Signups = make([]dailyCount, 0, len(rep.SignupTrend))
	for _, d := range rep.SignupTrend {
		out.Trends.Signups = append(out.Trends.Signups, dailyCount{Day: d.Day, Count: d.Value})
	}
	return out
}

func dailyTotals(days []model.DayValue) []dailyTotal {
	out := make([]dailyTotal, 0, len(days))
	for _, d := range days {
		out = append(out, dailyTotal{Day: d.Day, DailyTotal: d.Value})
	}
	return out
}
