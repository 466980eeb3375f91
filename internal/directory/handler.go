package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
)

// Lookup is the subset of the repository the handler reads from.
type Lookup interface {
	Vessels(ctx context.Context) ([]Vessel, error)
	VesselName(ctx context.Context, id string) (string, error)
}

// Handler exposes read-only directory endpoints.
type Handler struct {
	logger *slog.Logger
	repo   Lookup
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo Lookup) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vessels", h.listVessels)
	r.Get("/vessels/{id}", h.getVessel)
}

func (h *Handler) listVessels(w http.ResponseWriter, r *http.Request) {
	vessels, err := h.repo.Vessels(r.Context())
	if err != nil {
		h.logger.Error("list vessels", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if vessels == nil {
		vessels = []Vessel{}
	}
	httpx.OK(w, http.StatusOK, vessels)
}

func (h *Handler) getVessel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name, err := h.repo.VesselName(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: vessel %s", httpx.ErrNotFound, id))
			return
		}
		h.logger.Error("get vessel", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, Vessel{ID: id, Name: name})
}
