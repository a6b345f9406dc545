// Package schema keeps the live users table in step with the columns the
// service expects, without ever dropping or rewriting existing data.
package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// lockKey serializes reconcilers across instances sharing one database.
const lockKey int64 = 0x6b6f626f

// Column is one additive column definition. Type and Default are SQL
// fragments taken only from the fixed list below.
type Column struct {
	Table   string
	Name    string
	Type    string
	Default string
}

// DDL renders the idempotent ALTER statement for the column.
func (c Column) DDL() string {
	s := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		pgx.Identifier{c.Table}.Sanitize(), pgx.Identifier{c.Name}.Sanitize(), c.Type)
	if c.Default != "" {
		s += " DEFAULT " + c.Default
	}
	return s
}

// UserColumns are the columns added to users after the baseline schema.
var UserColumns = []Column{
	{Table: "users", Name: "kobo_id", Type: "TEXT UNIQUE"},
	{Table: "users", Name: "account_status", Type: "TEXT", Default: "'active'"},
	{Table: "users", Name: "last_login", Type: "TIMESTAMP"},
	{Table: "users", Name: "device_info", Type: "JSONB"},
	{Table: "users", Name: "admin_notes", Type: "TEXT"},
	{Table: "users", Name: "country", Type: "TEXT", Default: "'Nigeria'"},
	{Table: "users", Name: "role", Type: "TEXT", Default: "'user'"},
	{Table: "users", Name: "first_name", Type: "TEXT"},
	{Table: "users", Name: "surname", Type: "TEXT"},
	{Table: "users", Name: "business_name", Type: "TEXT"},
	{Table: "users", Name: "pin", Type: "TEXT"},
	{Table: "users", Name: "is_pro", Type: "BOOLEAN", Default: "FALSE"},
}

const loginHistoryDDL = `
CREATE TABLE IF NOT EXISTS login_history (
    id SERIAL PRIMARY KEY,
    user_id TEXT REFERENCES users(id),
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    ip_address TEXT,
    successful BOOLEAN,
    device_info JSONB
)`

// TxBeginner is the part of a pool the reconciler needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Reconciler adds missing columns and the login_history table.
type Reconciler struct {
	db      TxBeginner
	log     *zap.Logger
	columns []Column
}

// New constructs a reconciler for UserColumns.
func New(db TxBeginner, log *zap.Logger) *Reconciler {
	return &Reconciler{db: db, log: log, columns: UserColumns}
}

// Report lists what a run changed.
type Report struct {
	Added []string // "table.column"
}

// Run applies every missing column in one transaction. Either all additions
// land or none do. Concurrent runs wait on an advisory lock and then find
// nothing left to add.
func (r *Reconciler) Run(ctx context.Context) (rep Report, err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return Report{}, fmt.Errorf("advisory lock: %w", err)
	}

	existing := map[string]map[string]bool{}
	for _, c := range r.columns {
		if existing[c.Table] != nil {
			continue
		}
		if existing[c.Table], err = columnsOf(ctx, tx, c.Table); err != nil {
			return Report{}, fmt.Errorf("inspect %s: %w", c.Table, err)
		}
	}

	for _, c := range r.columns {
		if existing[c.Table][c.Name] {
			continue
		}
		if _, err = tx.Exec(ctx, c.DDL()); err != nil {
			return Report{}, fmt.Errorf("add %s.%s: %w", c.Table, c.Name, err)
		}
		existing[c.Table][c.Name] = true
		rep.Added = append(rep.Added, c.Table+"."+c.Name)
		r.log.Info("schema column added", zap.String("table", c.Table), zap.String("column", c.Name))
	}

	if _, err = tx.Exec(ctx, loginHistoryDDL); err != nil {
		return Report{}, fmt.Errorf("login_history: %w", err)
	}
	return rep, nil
}

func columnsOf(ctx context.Context, tx pgx.Tx, table string) (map[string]bool, error) {
	const q = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1`
	rows, err := tx.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
