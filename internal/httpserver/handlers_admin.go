package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/CedrosPay/secheaders/internal/errors"
	"github.com/CedrosPay/secheaders/internal/logger"
	"github.com/CedrosPay/secheaders/internal/policy"
)

// updateHeaderRequest is the body of PUT /admin/headers/{key}.
type updateHeaderRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type headersResponse struct {
	Headers []policy.Status `json:"headers"`
}

// listHeaders returns every definition with its current enablement.
func (h *handlers) listHeaders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, headersResponse{Headers: h.engine.Describe(r.Context())})
}

// getHeader returns a single definition.
func (h *handlers) getHeader(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	status, ok := h.status(r, key)
	if !ok {
		unknownSetting(w, key)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// updateHeader toggles one definition.
func (h *handlers) updateHeader(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := h.engine.Table().Lookup(key); !ok {
		unknownSetting(w, key)
		return
	}

	var req updateHeaderRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidBody, "Invalid request body", "reason", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		validationErrorResponse(w, err)
		return
	}

	log := logger.FromContextOr(r.Context(), h.logger)
	if err := h.store.SetBool(r.Context(), key, *req.Enabled); err != nil {
		log.Error().Err(err).Str("key", key).Msg("admin.header_update_failed")
		storeErrorResponse(w, err, key)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveSettingsChange("update")
	}
	log.Info().Str("key", key).Bool("enabled", *req.Enabled).Msg("admin.header_updated")

	status, _ := h.status(r, key)
	writeJSON(w, http.StatusOK, status)
}

// resetHeaders restores every definition to its recommended default.
func (h *handlers) resetHeaders(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reset(r.Context(), h.store); err != nil {
		log := logger.FromContextOr(r.Context(), h.logger)
		log.Error().Err(err).Msg("admin.headers_reset_failed")
		storeErrorResponse(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, headersResponse{Headers: h.engine.Describe(r.Context())})
}

// demo is the catch-all page. It lists the security headers the engine
// attached to this very response.
func (h *handlers) demo(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("secheaders\n\n")
	for _, def := range h.engine.Table().Definitions() {
		value := w.Header().Get(def.Header)
		if value == "" {
			value = "(not sent)"
		}
		fmt.Fprintf(&b, "%s: %s\n", def.Header, value)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

func (h *handlers) status(r *http.Request, key string) (policy.Status, bool) {
	for _, s := range h.engine.Describe(r.Context()) {
		if s.Key == key {
			return s, true
		}
	}
	return policy.Status{}, false
}

func unknownSetting(w http.ResponseWriter, key string) {
	apierrors.WriteSettingError(w, apierrors.ErrCodeUnknownSetting, "Unknown header setting", key)
}
