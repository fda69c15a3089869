package adapthttp

import (
	"errors"
	"log"
	"net/http"

	"tensiometer/internal/app"
	"tensiometer/internal/domain"
)

func (s *Server) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page := intQuery(r, "page", app.DefaultPage)
	limit := intQuery(r, "limit", app.DefaultLimit)

	res, err := s.measurements.List(r.Context(), user.ID, page, limit)
	if err != nil {
		s.fail(w, "list measurements", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRangeMeasurements(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	q := r.URL.Query()

	items, err := s.measurements.ListRange(r.Context(), user.ID, q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		s.fail(w, "list measurements by range", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"measurements": items})
}

func (s *Server) handleCreateMeasurement(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var in domain.MeasurementInput
	if err := parseLooseJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	m, err := s.measurements.Create(r.Context(), user.ID, in)
	if err != nil {
		s.fail(w, "create measurement", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "Measurement created successfully",
		"measurement": m,
	})
}

func (s *Server) handleUpdateMeasurement(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var in domain.MeasurementInput
	if err := parseLooseJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	m, err := s.measurements.Update(r.Context(), user.ID, r.PathValue("id"), in)
	if err != nil {
		s.fail(w, "update measurement", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Measurement updated successfully",
		"measurement": m,
	})
}

func (s *Server) handleDeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if err := s.measurements.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.fail(w, "delete measurement", err)
		return
	}
	writeMessage(w, http.StatusOK, "Measurement deleted successfully")
}

// fail maps service errors onto responses. Unexpected errors are logged and
// reported without detail.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation failed",
			"errors":  verr.Errors,
		})
	case errors.Is(err, app.ErrMissingParameter):
		writeMessage(w, http.StatusBadRequest, "Start date and end date are required")
	case errors.Is(err, domain.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Measurement not found")
	default:
		log.Printf("%s: %v", op, err)
		writeMessage(w, http.StatusInternalServerError, "Server error")
	}
}
