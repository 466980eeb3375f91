package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetdesk/fleetdesk/internal/auth"
	"github.com/fleetdesk/fleetdesk/internal/events"
	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	bus      events.Bus
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, bus events.Bus) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		bus:      bus,
		validate: validator.New(),
	}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Get("/", h.listPRs)
		r.Post("/", h.createPR)
		r.Get("/{id}", h.getPR)
		r.Put("/{id}", h.updatePR)
		r.Delete("/{id}", h.deletePR)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Post("/", h.composePO)
		r.Get("/{id}", h.getPO)
		r.Post("/{id}/status", h.updatePOStatus)
	})
}

// respondError maps domain errors onto the envelope. Unknown errors are
// logged with detail and surfaced as a generic 500.
func (h *Handler) respondError(r *http.Request, w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrValidation):
		httpx.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		httpx.Fail(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Fail(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) listPRs(w http.ResponseWriter, r *http.Request) {
	filter := RequestFilter{
		VesselID:    r.URL.Query().Get("vesselId"),
		CreatedByID: r.URL.Query().Get("createdById"),
	}
	if raw := r.URL.Query().Get("masterApproved"); raw != "" {
		approved, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "masterApproved must be a boolean")
			return
		}
		filter.MasterApproved = &approved
	}
	prs, err := h.service.ListPRs(r.Context(), filter)
	if err != nil {
		h.respondError(r, w, err, "list purchase requests")
		return
	}
	if prs == nil {
		prs = []PurchaseRequest{}
	}
	httpx.OK(w, http.StatusOK, prs)
}

func (h *Handler) createPR(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createPRRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	vesselID := req.VesselID
	if vesselID == "" {
		vesselID = identity.VesselID
	}
	pr, err := h.service.CreatePR(r.Context(), CreatePRInput{
		CreatedByID:     identity.UserID,
		VesselID:        vesselID,
		Category:        req.Category,
		Priority:        req.Priority,
		CustomReference: req.CustomReference,
		Notes:           req.Notes,
		Products:        toLineItemInputs(req.Products),
	})
	if err != nil {
		h.respondError(r, w, err, "create purchase request")
		return
	}
	httpx.OK(w, http.StatusCreated, pr)
}

func (h *Handler) getPR(w http.ResponseWriter, r *http.Request) {
	pr, err := h.service.GetPR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(r, w, err, "get purchase request")
		return
	}
	httpx.OK(w, http.StatusOK, pr)
}

// updatePR multiplexes all workflow mutations behind one endpoint. Sections
// present in the body apply in order: approval, send to quotation, quotation
// submission, product replacement, detail fields. The first failure stops the
// chain.
func (h *Handler) updatePR(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	var req updatePRRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, err := h.service.GetPR(r.Context(), id)
	if err != nil {
		h.respondError(r, w, err, "get purchase request")
		return
	}

	if req.MasterApproved != nil {
		pr, err = h.service.SetApproval(r.Context(), identity.UserID, id, *req.MasterApproved)
		if err != nil {
			h.respondError(r, w, err, "set approval")
			return
		}
	}
	if req.SendToQuotation != nil && *req.SendToQuotation {
		pr, err = h.service.SendToQuotation(r.Context(), identity.UserID, id)
		if err != nil {
			h.respondError(r, w, err, "send to quotation")
			return
		}
	}
	if req.Quotation != nil {
		lines := make([]QuotationLineInput, 0, len(req.Quotation.Products))
		for _, p := range req.Quotation.Products {
			lines = append(lines, QuotationLineInput{
				ID:                p.ID,
				QuotedPrice:       p.QuotedPrice,
				SupplierName:      p.SupplierName,
				Remark:            p.Remark,
				UnavailableReason: p.UnavailableReason,
			})
		}
		pr, err = h.service.SubmitQuotation(r.Context(), identity.UserID, id, SubmitQuotationInput{
			Lines:  lines,
			Remark: req.Quotation.Remark,
		})
		if err != nil {
			h.respondError(r, w, err, "submit quotation")
			return
		}
	}
	if req.Products != nil {
		pr, err = h.service.ReplaceLineItems(r.Context(), identity.UserID, id, toLineItemInputs(req.Products))
		if err != nil {
			h.respondError(r, w, err, "replace line items")
			return
		}
	}
	patch := DetailsPatch{
		CustomReference: req.CustomReference,
		Category:        req.Category,
		Priority:        req.Priority,
		Notes:           req.Notes,
	}
	if !patch.Empty() {
		pr, err = h.service.UpdateDetails(r.Context(), identity.UserID, id, patch)
		if err != nil {
			h.respondError(r, w, err, "update details")
			return
		}
	}
	httpx.OK(w, http.StatusOK, pr)
}

func (h *Handler) deletePR(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.service.DeletePR(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		h.respondError(r, w, err, "delete purchase request")
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	filter := OrderFilter{
		CreatorID:         r.URL.Query().Get("creatorId"),
		PurchaseRequestID: r.URL.Query().Get("purchaseRequestId"),
	}
	pos, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondError(r, w, err, "list purchase orders")
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.OK(w, http.StatusOK, pos)
}

func (h *Handler) composePO(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req composePORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	lines := make([]ComposeLineInput, 0, len(req.Products))
	for _, p := range req.Products {
		lines = append(lines, ComposeLineInput{PRProductID: p.PRProductID, ValidatedQuantity: p.ValidatedQuantity})
	}
	po, err := h.service.ComposeOrder(r.Context(), ComposeOrderInput{
		PurchaseRequestID: req.PurchaseRequestID,
		CreatedByID:       identity.UserID,
		Notes:             req.Notes,
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
		Lines:             lines,
	})
	if err != nil {
		h.respondError(r, w, err, "compose purchase order")
		return
	}
	httpx.OK(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(r, w, err, "get purchase order")
		return
	}
	httpx.OK(w, http.StatusOK, po)
}

func (h *Handler) updatePOStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updatePOStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	po, err := h.service.UpdateOrderStatus(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.respondError(r, w, err, "update order status")
		return
	}
	httpx.OK(w, http.StatusOK, po)
}
