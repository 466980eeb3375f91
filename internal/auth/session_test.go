package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, "fleetdesk_session", time.Hour), srv
}

func TestSessionLookup(t *testing.T) {
	store, srv := newTestStore(t)
	ctx := context.Background()

	ident := Identity{UserID: "u-1", Role: "master", VesselID: "v-1"}
	require.NoError(t, store.Put(ctx, "tok-1", ident))

	got, err := store.Lookup(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, ident, got)

	_, err = store.Lookup(ctx, "unknown")
	require.ErrorIs(t, err, ErrNoSession)

	_, err = store.Lookup(ctx, "")
	require.ErrorIs(t, err, ErrNoSession)

	// Lookup refreshes the sliding TTL.
	srv.FastForward(30 * time.Minute)
	_, err = store.Lookup(ctx, "tok-1")
	require.NoError(t, err)
	srv.FastForward(45 * time.Minute)
	_, err = store.Lookup(ctx, "tok-1")
	require.NoError(t, err)
	srv.FastForward(2 * time.Hour)
	_, err = store.Lookup(ctx, "tok-1")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestMiddleware(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "tok-ok", Identity{UserID: "u-2", Role: "crew", VesselID: "v-1"}))

	var captured Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		captured = ident
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(store, nil)(next)

	// Bearer header.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/purchase-requests", nil)
	req.Header.Set("Authorization", "Bearer tok-ok")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "u-2", captured.UserID)

	// Session cookie.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/purchase-requests", nil)
	req.AddCookie(&http.Cookie{Name: "fleetdesk_session", Value: "tok-ok"})
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Missing or bad token.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/purchase-requests", nil)
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/purchase-requests", nil)
	req.Header.Set("Authorization", "Bearer nope")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
