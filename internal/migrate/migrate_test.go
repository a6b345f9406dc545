package migrate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// nopConnector hands out connections that answer goose's read-only
// bookkeeping queries (version table present, nothing applied) and refuse
// every other statement, so any DDL issued without the lock fails the test.
type nopConnector struct{}

func (nopConnector) Connect(context.Context) (driver.Conn, error) { return nopConn{}, nil }
func (nopConnector) Driver() driver.Driver                        { return nopDriver{} }

type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return nopConn{}, nil }

type nopConn struct{}

func (nopConn) Prepare(query string) (driver.Stmt, error) {
	switch {
	case strings.Contains(query, "SELECT EXISTS"):
		return &nopStmt{cols: []string{"exists"}, vals: [][]driver.Value{{true}}}, nil
	case strings.Contains(query, "SELECT version_id, is_applied"):
		return &nopStmt{cols: []string{"version_id", "is_applied"}}, nil
	}
	return nil, fmt.Errorf("unexpected statement: %s", query)
}
func (nopConn) Close() error              { return nil }
func (nopConn) Begin() (driver.Tx, error) { return nil, errors.New("unexpected transaction") }

type nopStmt struct {
	cols []string
	vals [][]driver.Value
}

func (s *nopStmt) Close() error  { return nil }
func (s *nopStmt) NumInput() int { return -1 }
func (s *nopStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("unexpected exec")
}
func (s *nopStmt) Query([]driver.Value) (driver.Rows, error) {
	return &nopRows{cols: s.cols, vals: s.vals}, nil
}

type nopRows struct {
	cols []string
	vals [][]driver.Value
}

func (r *nopRows) Columns() []string { return r.cols }
func (r *nopRows) Close() error      { return nil }
func (r *nopRows) Next(dest []driver.Value) error {
	if len(r.vals) == 0 {
		return io.EOF
	}
	copy(dest, r.vals[0])
	r.vals = r.vals[1:]
	return nil
}

type fakeLocker struct {
	locks, unlocks int
	err            error
}

func (f *fakeLocker) SessionLock(context.Context, *sql.Conn) error {
	f.locks++
	return f.err
}

func (f *fakeLocker) SessionUnlock(context.Context, *sql.Conn) error {
	f.unlocks++
	return nil
}

func TestRun_TakesSessionLockBeforeMigrating(t *testing.T) {
	db := sql.OpenDB(nopConnector{})
	defer db.Close()

	held := errors.New("lock held by another instance")
	locker := &fakeLocker{err: held}

	_, err := run(context.Background(), db, locker, zaptest.NewLogger(t))
	require.ErrorIs(t, err, held)
	require.Equal(t, 1, locker.locks)
	require.Zero(t, locker.unlocks)
}

func TestNewProvider_SeesEmbeddedMigrations(t *testing.T) {
	db := sql.OpenDB(nopConnector{})
	defer db.Close()

	p, err := newProvider(db, &fakeLocker{})
	require.NoError(t, err)

	var versions []int64
	for _, s := range p.ListSources() {
		versions = append(versions, s.Version)
	}
	require.Equal(t, []int64{1, 2, 3}, versions)
}
