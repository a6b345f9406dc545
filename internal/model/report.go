package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Readiness is the loan readiness tier derived from sales history breadth.
type Readiness string

const (
	ReadinessReady      Readiness = "Ready"
	ReadinessDeveloping Readiness = "Developing"
	ReadinessNeedData   Readiness = "Need Data"
)

// LoanReadiness pairs the tier with the evidence it was derived from.
type LoanReadiness struct {
	Score        Readiness `json:"score"`
	MonthsOfData int64     `json:"monthsOfData"`
}

// Engagement summarizes a single user's activity.
type Engagement struct {
	TotalSales    int64         `json:"totalSales"`
	TotalItems    int           `json:"totalItems"`
	FirstSale     *time.Time    `json:"firstSale"`
	LastSale      *time.Time    `json:"lastSale"`
	DaysActive    int64         `json:"daysActive"`
	LoanReadiness LoanReadiness `json:"loanReadiness"`
}

// ActivityStats is the raw per-user input to the engagement heuristic.
type ActivityStats struct {
	SaleCount      int64
	FirstSale      *time.Time
	LastSale       *time.Time
	DaysActive     int64
	DistinctMonths int64
}

// UserDetails is the composite admin view of one user.
type UserDetails struct {
	User       User       `json:"user"`
	Items      []Item     `json:"items"`
	Sales      []Sale     `json:"sales"`
	Engagement Engagement `json:"engagement"`
}

// Totals holds flat store-wide counts and sums. Empty stores report zeros.
type Totals struct {
	Users        int64
	PremiumUsers int64
	Revenue      int64
	Sales        int64
	Items        int64
}

// Bucket is one group of a categorical distribution.
type Bucket struct {
	Key   *string
	Count int64
}

// DayValue is one calendar-day bucket of a trend.
type DayValue struct {
	Day   time.Time
	Value int64
}

// Report is the full aggregate view over the store.
type Report struct {
	Totals      Totals
	AverageSale decimal.Decimal
	Countries   []Bucket
	Categories  []Bucket
	SalesTrend  []DayValue
	SignupTrend []DayValue
}
