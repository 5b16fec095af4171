package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/order/workflow"
	"github.com/carebridge/platform/internal/shared/auth"
	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/middleware"
	"github.com/carebridge/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the order module
type Handler struct {
	service *workflow.Service
	bus     events.EventBus
	limiter *middleware.IPRateLimiter
}

// NewHandler creates a new order handler. Routes that call the plan
// generation service get a per-IP rate limit.
func NewHandler(service *workflow.Service, bus events.EventBus, cfg config.CarePlanConfig) *Handler {
	return &Handler{
		service: service,
		bus:     bus,
		limiter: middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Routes registers the order routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListOrders)
	r.With(h.limiter.Middleware).Post("/", h.SubmitOrder)
	r.Post("/check", h.CheckDuplicates)

	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.With(h.limiter.Middleware).Put("/", h.UpdateOrder)

		r.Post("/review", h.SubmitReview)
		r.With(h.limiter.Middleware).Post("/regenerate", h.RegeneratePlan)
		r.Post("/accept-plan", h.AcceptPlan)
	})

	return r
}

// --- Request/Response types ---

type SubmitOrderRequest struct {
	domain.Submission
	// How to resolve an exact duplicate: "update" or "create".
	// Empty until the submitter has seen the warning.
	DuplicateResolution string `json:"duplicateResolution,omitempty"`
}

type ReviewRequest struct {
	Feedback []domain.Feedback `json:"feedback"`
}

type AcceptPlanRequest struct {
	CarePlan       string `json:"carePlan"`
	PharmacistName string `json:"pharmacistName"`
}

// --- Handlers ---

func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.service.Submit(r.Context(), req.Submission, workflow.SubmitOptions{
		Resolution: req.DuplicateResolution,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Blocked {
		writeJSON(w, http.StatusConflict, map[string]any{
			"blocked":  true,
			"warnings": result.Warnings,
		})
		return
	}

	if result.RequiresConfirmation {
		writeJSON(w, http.StatusConflict, map[string]any{
			"requiresConfirmation": true,
			"warnings":             result.Warnings,
		})
		return
	}

	h.publishEvents(r.Context(), result.Order)

	status := http.StatusCreated
	if result.Updated {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"order":    result.Order,
		"warnings": result.Warnings,
		"updated":  result.Updated,
	})
}

func (h *Handler) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	warnings, err := h.service.CheckDuplicates(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"warnings": warnings,
		"blocked":  domain.HasBlocking(warnings),
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		MRN:       r.URL.Query().Get("mrn"),
		Search:    r.URL.Query().Get("search"),
		OrderBy:   "created_at",
		OrderDesc: true,
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.ApprovalStatus(s)
		filter.Status = &status
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if offset, err := strconv.Atoi(o); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  orders,
		"total": total,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	var upd domain.ContentUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	order, err := h.service.ConfirmUpdate(r.Context(), id, upd)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), order)
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	// Fill the reviewer name from the session when items omit it
	if user := auth.GetUser(r.Context()); user != nil {
		for i := range req.Feedback {
			if req.Feedback[i].PharmacistName == "" {
				req.Feedback[i].PharmacistName = user.Name
			}
		}
	}

	order, err := h.service.SubmitReview(r.Context(), id, req.Feedback)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), order)
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) RegeneratePlan(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	candidate, err := h.service.RegeneratePlan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.bus != nil {
		event := events.NewEvent("careplan.regenerated", "order", map[string]any{
			"order_id": id,
		})
		if user := auth.GetUser(r.Context()); user != nil {
			event = event.WithActor(user.ID, user.UserType, user.Name)
		}
		h.bus.Publish(r.Context(), event)
	}

	// Candidate only; nothing is persisted until accept-plan
	writeJSON(w, http.StatusOK, map[string]any{
		"carePlan":  candidate,
		"persisted": false,
	})
}

func (h *Handler) AcceptPlan(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid order ID"))
		return
	}

	var req AcceptPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.PharmacistName == "" {
		if user := auth.GetUser(r.Context()); user != nil {
			req.PharmacistName = user.Name
		}
	}

	order, err := h.service.AcceptPlan(r.Context(), id, req.CarePlan, req.PharmacistName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), order)
	writeJSON(w, http.StatusOK, order)
}

// --- Helpers ---

func (h *Handler) publishEvents(ctx context.Context, o *domain.Order) {
	if h.bus == nil || o == nil {
		return
	}

	user := auth.GetUser(ctx)
	for _, e := range o.GetDomainEvents() {
		event := events.NewEvent(e.Type, "order", e.Data)
		if user != nil {
			event = event.WithActor(user.ID, user.UserType, user.Name)
		}
		h.bus.Publish(ctx, event)
	}
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
