package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/metrics"
	"github.com/carebridge/platform/internal/shared/middleware"
	"github.com/carebridge/platform/internal/shared/types"
)

// OrderGetter fetches a single order for document export
type OrderGetter interface {
	FindByID(ctx context.Context, id types.ID) (*domain.Order, error)
}

// Handler provides HTTP handlers for exports
type Handler struct {
	service *Service
	orders  OrderGetter
	limiter *middleware.IPRateLimiter
}

// NewHandler creates a new export handler. Exports are expensive, so
// they get their own per-IP rate limit.
func NewHandler(service *Service, orders OrderGetter, cfg config.ExportConfig) *Handler {
	return &Handler{
		service: service,
		orders:  orders,
		limiter: middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Routes registers the export routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.limiter.Middleware)

	r.Get("/orders", h.ExportOrders)
	r.Get("/orders/summary", h.ExportSummary)
	r.Get("/orders/{orderID}/careplan", h.ExportCarePlan)

	return r
}

// ExportOrders streams the filtered order set as CSV or JSON.
// Query parameters: startDate, endDate (YYYY-MM-DD, inclusive),
// medication (substring), format (csv or json, default csv).
func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Run(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	stamp := time.Now().UTC().Format("20060102")

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="orders-%s.csv"`, stamp))
		w.Header().Set("X-Export-Total", fmt.Sprintf("%d", result.Summary.TotalOrders))
		if err := WriteCSV(w, result.Orders); err != nil {
			writeError(w, err)
			return
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="orders-%s.json"`, stamp))
		w.Header().Set("X-Export-Total", fmt.Sprintf("%d", result.Summary.TotalOrders))
		if err := WriteJSON(w, result.Orders); err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, errors.BadRequest("unsupported export format: "+format))
		return
	}

	metrics.RecordExport(format)
}

// ExportSummary returns the aggregate counts without the file body
func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Run(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.Summary)
}

// ExportCarePlan renders one order's care plan as a PDF document
func (h *Handler) ExportCarePlan(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	order, err := h.orders.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="careplan-%s-%s.pdf"`, order.PatientMRN, order.CreatedAt.Format("20060102")))

	if err := WritePDF(w, *order); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordExport("pdf")
}

func parseFilter(r *http.Request) (Filter, error) {
	var f Filter

	if s := r.URL.Query().Get("startDate"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return f, errors.BadRequest("startDate must be YYYY-MM-DD")
		}
		f.Start = &t
	}

	if e := r.URL.Query().Get("endDate"); e != "" {
		t, err := time.Parse("2006-01-02", e)
		if err != nil {
			return f, errors.BadRequest("endDate must be YYYY-MM-DD")
		}
		// Inclusive upper bound: cover the whole end day
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.End = &end
	}

	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return f, errors.BadRequest("endDate must not be before startDate")
	}

	f.Medication = r.URL.Query().Get("medication")
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
