// Package handlers provides HTTP handlers for the fill ops API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meridianrx/fillengine/internal/api/middleware"
	"github.com/meridianrx/fillengine/internal/store"
)

// FillErrorHandler exposes the retry queue to CSR tooling. Operators list
// failed orders, flip the ready flag once the underlying cause is fixed, and
// remove rows that will never succeed.
type FillErrorHandler struct {
	errs   *store.FillErrorStore
	logger *zap.Logger
}

// NewFillErrorHandler creates a new handler.
func NewFillErrorHandler(errs *store.FillErrorStore, logger *zap.Logger) *FillErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FillErrorHandler{errs: errs, logger: logger}
}

// Routes returns the handler routes.
func (h *FillErrorHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/ready", h.MarkReady)
	r.Delete("/{id}", h.Remove)
	return r
}

// FillErrorResponse is the API shape of one retry record.
type FillErrorResponse struct {
	ID        uint      `json:"id"`
	CRMType   string    `json:"crm_type"`
	CRMID     string    `json:"crm_id"`
	CRMOrder  string    `json:"crm_order"`
	List      string    `json:"list"`
	Reason    string    `json:"reason"`
	FailCount int       `json:"fail_count"`
	Ready     bool      `json:"ready"`
	RxNumber  string    `json:"rx_number,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(rec store.FillError) FillErrorResponse {
	return FillErrorResponse{
		ID:        rec.ID,
		CRMType:   rec.CRMType,
		CRMID:     rec.CRMID,
		CRMOrder:  rec.CRMOrder,
		List:      string(rec.List),
		Reason:    rec.Reason,
		FailCount: rec.FailCount,
		Ready:     rec.Ready,
		RxNumber:  rec.RxNumber,
		UpdatedAt: rec.UpdatedAt,
	}
}

// List handles GET /fill-errors
func (h *FillErrorHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := h.errs.All(ctx, limit)
	if err != nil {
		h.logger.Error("list fill errors failed", zap.Error(err))
		h.jsonError(w, "failed to list fill errors", http.StatusInternalServerError)
		return
	}

	out := make([]FillErrorResponse, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toResponse(rec))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// Get handles GET /fill-errors/{id}
func (h *FillErrorHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}

	rec, err := h.errs.Get(ctx, id)
	if err != nil {
		h.logger.Error("get fill error failed", zap.Error(err))
		h.jsonError(w, "failed to get fill error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		h.jsonError(w, "fill error not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(*rec))
}

// MarkReady handles POST /fill-errors/{id}/ready
func (h *FillErrorHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.errs.MarkReady(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.jsonError(w, "fill error not found", http.StatusNotFound)
			return
		}
		h.logger.Error("mark ready failed", zap.Error(err))
		h.jsonError(w, "failed to mark ready", http.StatusInternalServerError)
		return
	}

	h.logger.Info("fill error marked ready",
		zap.Uint("id", id),
		zap.String("client_id", middleware.GetClientID(ctx)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "ready": true})
}

// Remove handles DELETE /fill-errors/{id}
func (h *FillErrorHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.errs.Remove(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.jsonError(w, "fill error not found", http.StatusNotFound)
			return
		}
		h.logger.Error("remove fill error failed", zap.Error(err))
		h.jsonError(w, "failed to remove fill error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("fill error removed",
		zap.Uint("id", id),
		zap.String("client_id", middleware.GetClientID(ctx)))

	w.WriteHeader(http.StatusNoContent)
}

func parseID(r *http.Request) (uint, error) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}

func (h *FillErrorHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
