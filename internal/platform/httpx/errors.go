// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

// Sentinel errors for the HTTP layer.
var (
	ErrBadRequest = errors.New("bad request")
)

// ValidationProblem extends ProblemDetail with per-field messages.
type ValidationProblem struct {
	ProblemDetail
	Fields map[string]string `json:"fields,omitempty"`
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verrs *validation.Errors
	var fe *validation.FieldError
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs.Fields))
		for name, f := range verrs.Fields {
			fields[name] = f.Message
		}
		JSON(w, http.StatusUnprocessableEntity, ValidationProblem{
			ProblemDetail: ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity, Detail: err.Error()},
			Fields:        fields,
		})
	case errors.As(err, &fe):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", fe.Error())
	case errors.Is(err, ErrBadRequest), errors.Is(err, shared.ErrInvalidID):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserMessage(shared.NewStoreError("auth", http.StatusUnauthorized, err)))
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserMessage(shared.NewStoreError("lookup", http.StatusNotFound, err)))
	default:
		var storeErr *shared.StoreError
		if !errors.As(err, &storeErr) {
			Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if status := storeErr.Status; status >= 400 && status < 500 {
			Problem(w, status, http.StatusText(status), shared.UserMessage(err))
			return
		}
		Problem(w, http.StatusBadGateway, "Store Unavailable", shared.UserMessage(err))
	}
}
