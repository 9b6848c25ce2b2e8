package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yok-tottii/mic-calibrator/internal/i18n"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

// requestError marks a malformed or invalid request body
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// FieldError describes one invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Detail   string           `json:"detail,omitempty"`
	Fields   []FieldError     `json:"fields,omitempty"`
	Snapshot *wizard.Snapshot `json:"snapshot,omitempty"`
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrSessionNotFound), errors.Is(err, selection.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrAlreadyHeld),
		errors.Is(err, wizard.ErrSessionBusy),
		errors.Is(err, wizard.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrNoInputDevices),
		errors.Is(err, wizard.ErrAllDevicesFailed),
		errors.Is(err, wizard.ErrInvalidSelection):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// codeFor returns the machine readable error code
func codeFor(err error) string {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return "invalid_request"
	}
	if errors.Is(err, selection.ErrNotFound) {
		return "no_selection"
	}
	return strings.TrimPrefix(i18n.ErrorKey(err), "error.")
}

func (h *Handler) writeError(w http.ResponseWriter, err error, snap *wizard.Snapshot) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed: %v", err)
	} else {
		h.log.Debug("request rejected (%d): %v", status, err)
	}

	resp := ErrorResponse{
		Code:     codeFor(err),
		Message:  h.tr.Error(err),
		Detail:   err.Error(),
		Snapshot: snap,
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, FieldError{Field: fe.Field(), Message: formatValidationMessage(fe)})
		}
		resp.Message = "invalid request"
	} else if resp.Code == "invalid_request" {
		resp.Message = "invalid request body"
	}

	writeJSON(w, status, resp)
}

// formatValidationMessage creates a human-readable message from a validator error
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// jsonTagName reports fields by their JSON names
func jsonTagName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
