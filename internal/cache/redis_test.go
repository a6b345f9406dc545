package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Users   int64 `json:"users"`
	Revenue int64 `json:"revenue"`
}

func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), "redis://"+s.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestRedis_SetGet(t *testing.T) {
	c, s := setupRedis(t)
	ctx := context.Background()

	var got summary
	hit, err := c.Get(ctx, KeyReport, &got)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, KeyReport, summary{Users: 3, Revenue: 4500}))
	require.True(t, s.Exists("kobo:report:"+KeyReport))
	require.Equal(t, time.Minute, s.TTL("kobo:report:"+KeyReport))

	hit, err = c.Get(ctx, KeyReport, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, summary{Users: 3, Revenue: 4500}, got)
}

func TestRedis_Expires(t *testing.T) {
	c, s := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, KeyStats, summary{Users: 1}))
	s.FastForward(2 * time.Minute)

	var got summary
	hit, err := c.Get(ctx, KeyStats, &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestRedis_Invalidate(t *testing.T) {
	c, s := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, KeyReport, summary{Users: 1}))
	require.NoError(t, c.Set(ctx, KeyStats, summary{Users: 1}))
	require.NoError(t, s.Set("unrelated", "keep"))

	require.NoError(t, c.Invalidate(ctx))
	require.False(t, s.Exists("kobo:report:"+KeyReport))
	require.False(t, s.Exists("kobo:report:"+KeyStats))
	require.True(t, s.Exists("unrelated"))
}

func TestRedis_CorruptValue(t *testing.T) {
	c, s := setupRedis(t)
	require.NoError(t, s.Set("kobo:report:"+KeyStats, "{not json"))

	var got summary
	_, err := c.Get(context.Background(), KeyStats, &got)
	require.ErrorContains(t, err, "cache decode")
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "://nope", time.Minute)
	require.Error(t, err)
}

func TestNop_AlwaysMisses(t *testing.T) {
	var n Nop
	require.NoError(t, n.Set(context.Background(), KeyStats, 1))
	var v int
	hit, err := n.Get(context.Background(), KeyStats, &v)
	require.NoError(t, err)
	require.False(t, hit)
}
