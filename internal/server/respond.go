package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"voicecal/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Error: message})
}

// statusFor maps the pipeline error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyInput),
		errors.Is(err, models.ErrMalformedModelOutput),
		errors.Is(err, models.ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrItemBusy),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	default:
		// Remote calendar and upstream model failures.
		return http.StatusBadGateway
	}
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}
