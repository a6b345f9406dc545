package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/kobo-sync/internal/errs"
	"github.com/and161185/kobo-sync/internal/model"
	"github.com/and161185/kobo-sync/internal/query"
	"github.com/jackc/pgx/v5"
)

// userColumns is the projection scanned by scanUser. Nullable text columns are
// folded to defaults so admin views never see NULL.
const userColumns = `id, COALESCE(kobo_id, ''), COALESCE(owner_name, ''), COALESCE(first_name, ''),
COALESCE(surname, ''), COALESCE(shop_name, ''), COALESCE(business_name, ''), COALESCE(phone, ''),
COALESCE(state, ''), COALESCE(city, ''), COALESCE(country, ''), COALESCE(business_type, ''),
COALESCE(role, 'user'), COALESCE(is_pro, FALSE), COALESCE(account_status, 'active'),
last_login, device_info, COALESCE(admin_notes, ''), created_at, COALESCE(pin, '')`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// UpsertProfile inserts a profile row or merges owner name, shop name and
// state into an existing one. Absent fields never erase stored values.
func (r *UserRepo) UpsertProfile(ctx context.Context, p model.Profile) error {
	const q = `
INSERT INTO users (id, owner_name, shop_name, phone, state, city, business_type)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  owner_name = COALESCE(EXCLUDED.owner_name, users.owner_name),
  shop_name = COALESCE(EXCLUDED.shop_name, users.shop_name),
  state = COALESCE(EXCLUDED.state, users.state)`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.OwnerName, p.ShopName, p.Phone, p.State, p.City, p.BusinessType)
	return err
}

// Register inserts a user keyed by kobo_id or overwrites its identity fields.
// Role and credentials of an existing row are left untouched.
func (r *UserRepo) Register(ctx context.Context, id string, reg model.Registration) (bool, error) {
	const q = `
INSERT INTO users (id, kobo_id, first_name, surname, business_name, pin, country, business_type, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'user', COALESCE($9, CURRENT_TIMESTAMP))
ON CONFLICT (kobo_id) DO UPDATE SET
  first_name = EXCLUDED.first_name,
  surname = EXCLUDED.surname,
  business_name = EXCLUDED.business_name,
  country = EXCLUDED.country,
  business_type = EXCLUDED.business_type
RETURNING (xmax = 0)`
	var created bool
	err := r.db.Pool.QueryRow(ctx, q, id, reg.KoboID, reg.FirstName, reg.Surname, reg.BusinessName,
		reg.PIN, reg.Country, reg.BusinessType, reg.CreatedAt).Scan(&created)
	if isUniqueViolation(err) {
		return false, errs.ErrAlreadyExists
	}
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetByKoboID selects a user by external identifier.
func (r *UserRepo) GetByKoboID(ctx context.Context, koboID string) (*model.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE kobo_id = $1"
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, koboID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// List returns users matching the filter.
func (r *UserRepo) List(ctx context.Context, f query.UserFilter) ([]model.User, error) {
	q, args, err := query.ListUsers(userColumns, f)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SetPIN replaces the stored credential.
func (r *UserRepo) SetPIN(ctx context.Context, koboID, encodedPIN string) error {
	const q = `UPDATE users SET pin = $2 WHERE kobo_id = $1`
	return r.execOne(ctx, q, koboID, encodedPIN)
}

// SetRole changes the role classification.
func (r *UserRepo) SetRole(ctx context.Context, koboID, role string) error {
	const q = `UPDATE users SET role = $2 WHERE kobo_id = $1`
	return r.execOne(ctx, q, koboID, role)
}

// SetPro changes the subscription flag.
func (r *UserRepo) SetPro(ctx context.Context, koboID string, isPro bool) error {
	const q = `UPDATE users SET is_pro = $2 WHERE kobo_id = $1`
	return r.execOne(ctx, q, koboID, isPro)
}

// TouchLogin stamps the last successful login.
func (r *UserRepo) TouchLogin(ctx context.Context, userID string, deviceInfo json.RawMessage) error {
	const q = `UPDATE users SET last_login = CURRENT_TIMESTAMP, device_info = $2 WHERE id = $1`
	return r.execOne(ctx, q, userID, []byte(deviceInfo))
}

// Terminate removes the user with its login history, sales and items in one
// transaction. Nothing is removed when any step fails.
func (r *UserRepo) Terminate(ctx context.Context, koboID string) (model.Termination, error) {
	const (
		sel      = `SELECT id FROM users WHERE kobo_id = $1 FOR UPDATE`
		delLogin = `DELETE FROM login_history WHERE user_id = $1`
		delSales = `DELETE FROM sales WHERE user_id = $1`
		delItems = `DELETE FROM items WHERE user_id = $1`
		delUser  = `DELETE FROM users WHERE id = $1`
	)
	var res model.Termination
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sel, koboID).Scan(&res.UserID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx, delLogin, res.UserID)
		if err != nil {
			return fmt.Errorf("delete login history: %w", err)
		}
		res.LoginEvents = tag.RowsAffected()
		if tag, err = tx.Exec(ctx, delSales, res.UserID); err != nil {
			return fmt.Errorf("delete sales: %w", err)
		}
		res.Sales = tag.RowsAffected()
		if tag, err = tx.Exec(ctx, delItems, res.UserID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		res.Items = tag.RowsAffected()
		if _, err = tx.Exec(ctx, delUser, res.UserID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Termination{}, err
	}
	return res, nil
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u      model.User
		device []byte
	)
	err := row.Scan(&u.ID, &u.KoboID, &u.OwnerName, &u.FirstName, &u.Surname, &u.ShopName,
		&u.BusinessName, &u.Phone, &u.State, &u.City, &u.Country, &u.BusinessType, &u.Role,
		&u.IsPro, &u.AccountStatus, &u.LastLogin, &device, &u.AdminNotes, &u.CreatedAt, &u.PIN)
	if err != nil {
		return nil, err
	}
	if len(device) > 0 {
		u.DeviceInfo = json.RawMessage(device)
	}
	return &u, nil
}
