package emr

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/types"
)

// Handler exposes EMR lookups for intake form pre-fill
type Handler struct {
	adapter *Adapter
}

// NewHandler creates a new EMR handler
func NewHandler(adapter *Adapter) *Handler {
	return &Handler{adapter: adapter}
}

// Routes registers the EMR lookup routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/patients/{mrn}", h.GetPatient)
	r.Get("/prescribers/{npi}", h.GetPrescriber)

	return r
}

// GetPatient looks up patient demographics by MRN
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	mrn, err := types.ParseMRN(chi.URLParam(r, "mrn"))
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	demographics, err := h.adapter.FetchPatientDemographics(r.Context(), mrn.String())
	if err != nil {
		// Mask the identifier in error payloads
		writeError(w, mapLookupError(err, "patient", mrn.Masked()))
		return
	}

	writeJSON(w, http.StatusOK, demographics)
}

// GetPrescriber looks up prescriber master data by NPI
func (h *Handler) GetPrescriber(w http.ResponseWriter, r *http.Request) {
	npi, err := types.ParseNPI(chi.URLParam(r, "npi"))
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	prescriber, err := h.adapter.FetchPrescriber(r.Context(), npi.String())
	if err != nil {
		writeError(w, mapLookupError(err, "prescriber", npi.String()))
		return
	}

	writeJSON(w, http.StatusOK, prescriber)
}

func mapLookupError(err error, resource, id string) error {
	switch err {
	case ErrDisabled:
		return errors.Unavailable("EMR", err)
	case ErrNotFound:
		return errors.NotFound(resource, id)
	default:
		return errors.Wrap(err, "emr lookup failed")
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
