// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"
)

// Account defaults applied by the store when a column is left unset.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleAgent      = "agent"
	StatusActive   = "active"
	DefaultCountry = "Nigeria"
)

// User is the identity anchor. ID is immutable once assigned; KoboID is the
// human-facing login key and is unique when present.
type User struct {
	ID            string          `json:"id"`
	KoboID        string          `json:"kobo_id"`
	OwnerName     string          `json:"owner_name"`
	FirstName     string          `json:"first_name"`
	Surname       string          `json:"surname"`
	ShopName      string          `json:"shop_name"`
	BusinessName  string          `json:"business_name"`
	Phone         string          `json:"phone"`
	State         string          `json:"state"`
	City          string          `json:"city"`
	Country       string          `json:"country"`
	BusinessType  string          `json:"business_type"`
	Role          string          `json:"role"`
	IsPro         bool            `json:"is_pro"`
	AccountStatus string          `json:"account_status"`
	LastLogin     *time.Time      `json:"last_login"`
	DeviceInfo    json.RawMessage `json:"device_info"`
	AdminNotes    string          `json:"admin_notes"`
	CreatedAt     *time.Time      `json:"created_at"`
	PIN           string          `json:"-"` // stored credential, never serialized
}

// Profile is a device-originated profile snapshot keyed by primary id.
// Nil fields were not carried by the sync payload.
type Profile struct {
	ID           string
	OwnerName    *string
	ShopName     *string
	Phone        *string
	State        *string
	City         *string
	BusinessType *string
}

// Registration carries identity fields for a user keyed by KoboID.
type Registration struct {
	KoboID       string
	FirstName    string
	Surname      string
	BusinessName string
	PIN          string // already encoded by the caller
	Country      string
	BusinessType string
	CreatedAt    *time.Time
}

// Item is an inventory entry owned by exactly one user.
type Item struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Name      *string `json:"name"`
	Price     *int64  `json:"price"`
	Quantity  *int64  `json:"quantity"`
	IsService *bool   `json:"is_service"`
	Category  *string `json:"category"`
	CostPrice *int64  `json:"cost_price"`
}

// Sale is an immutable sales fact. CreatedAt is supplied by the device so
// offline sales keep their real time.
type Sale struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ItemID        *string    `json:"item_id"`
	ItemName      *string    `json:"item_name"`
	Total         *int64     `json:"total"`
	Quantity      *int64     `json:"quantity"`
	PaymentMethod *string    `json:"payment_method"`
	CreatedAt     *time.Time `json:"created_at"`
}

// LoginEvent is an append-only audit record of a login attempt.
type LoginEvent struct {
	ID         int64           `json:"id"`
	UserID     string          `json:"user_id"`
	Timestamp  *time.Time      `json:"timestamp"` // nil on legacy rows
	IPAddress  string          `json:"ip_address"`
	Successful bool            `json:"successful"`
	DeviceInfo json.RawMessage `json:"device_info"`
}

// Termination reports what a cascading user deletion removed.
type Termination struct {
	UserID      string
	Items       int64
	Sales       int64
	LoginEvents int64
}
