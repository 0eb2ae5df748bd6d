package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// errorStatus maps a domain error to an HTTP status and a stable code.
// Insufficient balance is checked before dependency failure because a
// failed consumption carries both.
func errorStatus(err error) (int, string) {
	var invalidBalance *leave.InvalidBalanceError
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, generic.ErrConcurrentModification), errors.Is(err, generic.ErrLockNotAcquired):
		return http.StatusConflict, "conflict"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, generic.ErrBatchRejected):
		return http.StatusUnprocessableEntity, "batch_rejected"
	case errors.As(err, &invalidBalance):
		return http.StatusUnprocessableEntity, "invalid_balance"
	case errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusBadRequest, "invalid_period"
	case errors.Is(err, generic.ErrDependencyFailure):
		return http.StatusBadGateway, "dependency_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError answers with the status errorStatus picks. Internal
// errors are not echoed to the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log(r).Error(message, zap.Error(err))
		if status == http.StatusInternalServerError {
			writeError(w, status, code, message, nil)
			return
		}
	}
	writeError(w, status, code, message, err)
}

// =============================================================================
// PAYLOAD VALIDATION
// =============================================================================

func newValidate() *validator.Validate {
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

// formatFieldName turns start_date into "Start Date". Casers keep
// state, so each call gets its own.
func formatFieldName(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// validationMessage describes the first failed field.
func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid input"
	}
	e := errs[0]
	field := formatFieldName(e.Field())
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	case "max":
		return field + " is too long"
	default:
		return field + " is invalid"
	}
}

// decodeAndValidate reads the JSON body into dst and checks its tags.
// It writes the 400 itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationMessage(err), nil)
		return false
	}
	return true
}
