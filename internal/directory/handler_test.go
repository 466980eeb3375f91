package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	vessels []Vessel
	err     error
}

func (f *fakeLookup) Vessels(ctx context.Context) ([]Vessel, error) {
	return f.vessels, f.err
}

func (f *fakeLookup) VesselName(ctx context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for _, v := range f.vessels {
		if v.ID == id {
			return v.Name, nil
		}
	}
	return "", ErrNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(repo Lookup) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.Default(), repo).MountRoutes(r)
	return r
}

func TestGetVessel(t *testing.T) {
	router := newTestRouter(&fakeLookup{vessels: []Vessel{{ID: "v-atlantic", Name: "MV Atlantic Dawn"}}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vessels/v-atlantic", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	var vessel Vessel
	require.NoError(t, json.Unmarshal(env.Data, &vessel))
	require.Equal(t, "v-atlantic", vessel.ID)
	require.Equal(t, "MV Atlantic Dawn", vessel.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vessels/v-ghost", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Contains(t, env.Error, "v-ghost")
}

func TestListVessels(t *testing.T) {
	router := newTestRouter(&fakeLookup{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vessels", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, "[]", string(env.Data))
}

func TestListVesselsStorageFailure(t *testing.T) {
	router := newTestRouter(&fakeLookup{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vessels", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Equal(t, "internal error", env.Error)
	require.NotContains(t, rec.Body.String(), "connection refused")
}
