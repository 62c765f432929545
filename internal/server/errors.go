package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/internal/rendezvous"
)

type apiError struct {
	Status  int
	Message string
}

type errorResponse struct {
	Error string `json:"error"`
}

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	writeJSON(w, err.Status, errorResponse{Error: err.Message})
}

// statusForAttempt maps an attempt failure to an HTTP status.
func statusForAttempt(err error) int {
	switch {
	case errors.Is(err, rendezvous.ErrAttemptInProgress):
		return http.StatusConflict
	case errors.Is(err, rendezvous.ErrInvalidAngles),
		errors.Is(err, geo.ErrDegenerateGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rendezvous.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, rendezvous.ErrAbandoned):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func attemptError(err error) *apiError {
	return &apiError{Status: statusForAttempt(err), Message: err.Error()}
}
