package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"

	apierrors "github.com/CedrosPay/secheaders/internal/errors"
	"github.com/CedrosPay/secheaders/internal/settings"
)

// writeJSON writes an application/json response with status code and payload.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// storeErrorResponse maps a settings backend failure onto the error envelope.
// Breaker and timeout failures are reported as retryable.
func storeErrorResponse(w http.ResponseWriter, err error, key string) {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, settings.ErrClosed):
		apierrors.WriteSettingError(w, apierrors.ErrCodeSettingsUnavailable,
			"Settings backend is temporarily unavailable", key)
	default:
		apierrors.WriteSettingError(w, apierrors.ErrCodeDatabaseError,
			"Failed to persist header setting", key)
	}
}

// validationErrorResponse reports the first failed field.
func validationErrorResponse(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidBody, "Invalid request body")
		return
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeMissingField,
			"Missing required field: "+field, "field", field)
		return
	}
	apierrors.WriteError(w, apierrors.ErrCodeInvalidField, "Invalid field: "+field, map[string]interface{}{
		"field": field,
		"rule":  fe.Tag(),
	})
}
