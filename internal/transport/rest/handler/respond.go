package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paulexconde/followup/pkg/fault"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFault maps the engine's error taxonomy one-to-one onto status codes.
func writeFault(w http.ResponseWriter, err error) {
	var validation *fault.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":    validation.Message,
			"question": validation.QuestionID,
			"rule":     validation.Rule,
		})
		return
	}

	var configuration *fault.ConfigurationError
	if errors.As(err, &configuration) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": configuration.Error(),
			"graph": configuration.GraphID,
		})
		return
	}

	switch {
	case errors.Is(err, fault.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, fault.ErrSessionFrozen):
		writeError(w, http.StatusConflict, "session is frozen")
	case errors.Is(err, fault.ErrSessionExpired):
		writeError(w, http.StatusGone, "session has expired")
	case errors.Is(err, fault.ErrNotEligible):
		writeError(w, http.StatusConflict, "session is not eligible for freezing")
	case errors.Is(err, fault.ErrUniqueViolation):
		writeError(w, http.StatusConflict, "already exists")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
