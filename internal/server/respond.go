package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/histx/internal/shared"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// statusFor maps sentinel errors to response codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, shared.ErrImportInProgress):
		return http.StatusConflict
	case errors.Is(err, shared.ErrJobNotFound), errors.Is(err, shared.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrUnknownPlatform),
		errors.Is(err, shared.ErrInvalidMode),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrBudgetExceeded):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}
