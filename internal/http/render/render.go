// Package render writes JSON responses and maps service errors to status
// codes.
package render

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/ledger"
)

type ErrorResponse struct {
	Error   string        `json:"error"`
	Details []FieldDetail `json:"details,omitempty"`
}

type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidator reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

func JSON(w http.ResponseWriter, status int, v any, log *logrus.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

// Error maps validation errors to 400, missing records to 404 and
// everything else to 500. Internal error text is not exposed.
func Error(w http.ResponseWriter, err error, log *logrus.Logger) {
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.As(err, &fieldErrs):
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: "request validation failed", Details: details(fieldErrs)}, log)
	case errors.Is(err, ledger.ErrValidation):
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()}, log)
	case errors.Is(err, ledger.ErrEntryNotFound), errors.Is(err, ledger.ErrBalanceNotFound):
		JSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()}, log)
	default:
		log.WithError(err).Error("request failed")
		JSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"}, log)
	}
}

// BadRequest reports malformed input such as undecodable bodies or path
// parameters.
func BadRequest(w http.ResponseWriter, msg string, log *logrus.Logger) {
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: msg}, log)
}

func details(errs validator.ValidationErrors) []FieldDetail {
	out := make([]FieldDetail, 0, len(errs))

	for _, e := range errs {
		out = append(out, FieldDetail{Field: e.Field(), Message: message(e)})
	}

	return out
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "datetime":
		return "Must be a date formatted as " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	default:
		return "Invalid value"
	}
}
