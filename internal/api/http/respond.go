package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/sweep"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and hidden behind a 500.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Fields: ve.Fields})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrAlreadyGraded),
		errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, sweep.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decode reads a JSON body and validates it. An empty body decodes to the zero value.
func decode(r *http.Request, v any) error {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return apperr.Validation("bad json: %v", err)
		}
	}
	return validateStruct(v)
}
