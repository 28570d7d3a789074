package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"psur-evidence/internal/apperr"
	"psur-evidence/internal/audit"
	"psur-evidence/internal/auth"
	reconciliation "psur-evidence/internal/reconciliation/domain"
)

type errorResponse struct {
	Error         string   `json:"error"`
	Kind          string   `json:"kind,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps engine error kinds onto HTTP status codes. Unclassified
// errors are logged and reported as 500 without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrTenantMismatch) || errors.Is(err, auth.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Kind: string(apperr.KindNotFound)})
		return
	}

	kind := apperr.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: string(kind)}
	var status int
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
		var missing *reconciliation.MissingFieldsError
		if errors.As(err, &missing) {
			resp.MissingFields = missing.Fields
		}
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, resp)
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		msg := "invalid json"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		if errors.Is(err, io.EOF) {
			msg = "request body required"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: string(apperr.KindValidation)})
		return false
	}
	return true
}

// pathParam returns an unescaped chi URL parameter. Column names may contain
// spaces and slashes.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if value, err := url.PathUnescape(raw); err == nil {
		return value
	}
	return raw
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New("dates must be YYYY-MM-DD or RFC3339")
	}
	return t.UTC(), nil
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID, caseID string, metadata any) {
	if h.audit == nil {
		return
	}
	entry := audit.NewEntry(r.Context(), action, resourceType, resourceID, caseID, metadata)
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logger.Warn("audit log failed", "action", action, "error", err)
	}
}
