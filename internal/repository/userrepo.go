// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"encoding/json"

	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/query"
)

// UserRepository provides access to users keyed by primary id (sync) or by
// kobo_id (registration, login and administration).
type UserRepository interface {
	// UpsertProfile inserts a profile or merges owner/shop name and state into the existing row.
	UpsertProfile(ctx context.Context, p model.Profile) error
	// Register inserts a user or merges identity fields on kobo_id conflict.
	// It reports whether a new row was created.
	Register(ctx context.Context, id string, r model.Registration) (created bool, err error)
	// GetByKoboID loads a user by external identifier.
	GetByKoboID(ctx context.Context, koboID string) (*model.User, error)
	// List returns users matching the filter, newest first.
	List(ctx context.Context, f query.UserFilter) ([]model.User, error)
	// SetPIN replaces the stored credential.
	SetPIN(ctx context.Context, koboID, encodedPIN string) error
	// SetRole changes the role classification.
	SetRole(ctx context.Context, koboID, role string) error
	// SetPro changes the subscription flag.
	SetPro(ctx context.Context, koboID string, isPro bool) error
	// TouchLogin stamps last_login and stores the device snapshot.
	TouchLogin(ctx context.Context, userID string, deviceInfo json.RawMessage) error
	// Terminate deletes the user and everything that references it.
	Terminate(ctx context.Context, koboID string) (model.Termination, error)
}
