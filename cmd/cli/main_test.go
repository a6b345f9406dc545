package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "kobo-admin")
}

type seen struct {
	method string
	path   string
	query  string
	body   map[string]any
}

// fakeAPI answers every request with status and body and records it.
func fakeAPI(t *testing.T, status int, body string) (*client, *seen) {
	t.Helper()
	got := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method, got.path, got.query = r.Method, r.URL.Path, r.URL.RawQuery
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			if len(b) > 0 {
				_ = json.Unmarshal(b, &got.body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return newClient(srv.URL+"/", srv.Client()), got
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	require.Equal(t, base, cfgDir())
	require.Equal(t, filepath.Join(base, "session.json"), sessionPath())
}

func Test_session_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	_, err := loadSession()
	require.Error(t, err)

	require.NoError(t, saveSession(session{Addr: "http://x", KoboID: "K1", Role: "admin"}))
	s, err := loadSession()
	require.NoError(t, err)
	require.Equal(t, "K1", s.KoboID)
	require.Equal(t, "admin", s.Role)

	fi, err := os.Stat(sessionPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func Test_run_Usage(t *testing.T) {
	c := newClient("http://unused", http.DefaultClient)
	ctx := context.Background()

	require.ErrorIs(t, run(ctx, c, nil, io.Discard), errUsage)
	require.ErrorIs(t, run(ctx, c, []string{"nope"}, io.Discard), errUsage)
	require.ErrorIs(t, run(ctx, c, []string{"details"}, io.Discard), errUsage)
	require.ErrorIs(t, run(ctx, c, []string{"reset-pin", "-id", "K1"}, io.Discard), errUsage)
	require.ErrorIs(t, run(ctx, c, []string{"users", "-bogus"}, io.Discard), errUsage)
}

func Test_run_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), nil, []string{"version"}, &out))
	require.True(t, strings.HasPrefix(out.String(), "kobo-admin dev"))
}

func Test_run_Login_SavesSession(t *testing.T) {
	_ = withTmpConfig(t)
	c, got := fakeAPI(t, http.StatusOK, `{"status":"success","user":{"kobo_id":"K1","role":"admin"}}`)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), c, []string{"login", "-id", "K1", "-pin", "1234"}, &out))
	require.Equal(t, "/auth/login", got.path)
	require.Equal(t, map[string]any{"koboId": "K1", "pin": "1234"}, got.body)

	s, err := loadSession()
	require.NoError(t, err)
	require.Equal(t, "admin", s.Role)

	out.Reset()
	require.NoError(t, run(context.Background(), c, []string{"whoami"}, &out))
	require.Contains(t, out.String(), `"kobo_id": "K1"`)
}

func Test_run_Users_OnlySetFilters(t *testing.T) {
	c, got := fakeAPI(t, http.StatusOK, `[{"kobo_id":"K1"}]`)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), c, []string{"users", "-country", "Ghana", "-tier", "", "-limit", "5"}, &out))
	require.Equal(t, http.MethodGet, got.method)
	require.Equal(t, "/admin/users", got.path)
	require.Equal(t, "country=Ghana&limit=5&tier=", got.query)
	require.Contains(t, out.String(), "K1")
}

func Test_run_Mutations(t *testing.T) {
	cases := []struct {
		args []string
		path string
		body map[string]any
	}{
		{[]string{"reset-pin", "-id", "K1", "-pin", "9999"}, "/admin/users/reset-pin", map[string]any{"koboId": "K1", "newPin": "9999"}},
		{[]string{"terminate", "-id", "K1"}, "/admin/users/terminate", map[string]any{"koboId": "K1"}},
		{[]string{"role", "-id", "K1", "-role", "agent"}, "/admin/users/update-role", map[string]any{"koboId": "K1", "role": "agent"}},
		{[]string{"pro", "-id", "K1", "-on=false"}, "/admin/users/toggle-pro", map[string]any{"koboId": "K1", "isPro": false}},
		{[]string{"activate", "-id", "K1"}, "/subscription/activate", map[string]any{"koboId": "K1"}},
	}
	for _, tc := range cases {
		c, got := fakeAPI(t, http.StatusOK, `{"status":"success"}`)
		require.NoError(t, run(context.Background(), c, tc.args, io.Discard), tc.args[0])
		require.Equal(t, http.MethodPost, got.method)
		require.Equal(t, tc.path, got.path)
		require.Equal(t, tc.body, got.body)
	}
}

func Test_run_Reads(t *testing.T) {
	cases := []struct {
		args []string
		path string
	}{
		{[]string{"details", "-id", "K 1"}, "/admin/users/K 1/details"},
		{[]string{"history", "-id", "K1"}, "/admin/users/K1/login-history"},
		{[]string{"stats"}, "/admin/stats"},
		{[]string{"analytics"}, "/admin/analytics"},
		{[]string{"analytics", "-v2"}, "/admin/analytics/v2"},
	}
	for _, tc := range cases {
		c, got := fakeAPI(t, http.StatusOK, `{}`)
		require.NoError(t, run(context.Background(), c, tc.args, io.Discard), tc.args[0])
		require.Equal(t, tc.path, got.path)
	}
}

func Test_run_APIError(t *testing.T) {
	c, _ := fakeAPI(t, http.StatusNotFound, `{"error":"user K9: not found","kind":"not_found"}`)

	err := run(context.Background(), c, []string{"terminate", "-id", "K9"}, io.Discard)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "not_found", apiErr.Kind)
	require.Equal(t, "http 404 (not_found): user K9: not found", err.Error())
}

func Test_client_NonJSONError(t *testing.T) {
	c, _ := fakeAPI(t, http.StatusBadGateway, "upstream down\n")
	err := c.get(context.Background(), "/admin/stats", nil, nil)
	require.EqualError(t, err, "http 502: upstream down")
}

func Test_client_LoginMessage(t *testing.T) {
	c, _ := fakeAPI(t, http.StatusUnauthorized, `{"status":"error","message":"Invalid credentials"}`)
	err := c.post(context.Background(), "/auth/login", map[string]string{}, nil)
	require.EqualError(t, err, "http 401: Invalid credentials")
}
