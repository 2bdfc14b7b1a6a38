package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/plant-trainer/internal/export"
	"github.com/signalsfoundry/plant-trainer/model"
)

// ErrBadRequest marks request bodies or parameters that could not be decoded.
var ErrBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps simulation errors onto HTTP status codes and a short kind.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrUnknownEntity):
		return http.StatusNotFound, "unknown_entity"
	case errors.Is(err, model.ErrOutOfRange):
		return http.StatusUnprocessableEntity, "out_of_range"
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrConflictingActivation):
		return http.StatusConflict, "conflicting_activation"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, kind := StatusFor(err)
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}
