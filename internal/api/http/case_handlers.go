package apihttp

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"psur-evidence/internal/auth"
	"psur-evidence/internal/catalog"
	"psur-evidence/internal/coverage/interfaces/export"
	ledgerapp "psur-evidence/internal/ledger/application"
	ledger "psur-evidence/internal/ledger/domain"
	"psur-evidence/internal/observability/metrics"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

func (h *Handler) atomCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.coverage.AtomCounts(r.Context(), pathParam(r, "caseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) caseCoverage(w http.ResponseWriter, r *http.Request) {
	cc, err := h.coverage.CaseCoverage(r.Context(), pathParam(r, "caseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cc)
}

func (h *Handler) coverageXLSX(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	caseID := pathParam(r, "caseID")
	cc, err := h.coverage.CaseCoverage(r.Context(), caseID)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.writeError(w, r, err)
		return
	}
	data, err := export.BuildCoverageXLSX(cc)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.writeError(w, r, err)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "coverage-"+caseID+".xlsx"))
	_, _ = w.Write(data)
}

type markRequest struct {
	DeviceCode    string                 `json:"device_code"`
	PeriodStart   string                 `json:"period_start"`
	PeriodEnd     string                 `json:"period_end"`
	EvidenceTypes []catalog.EvidenceType `json:"evidence_types"`
	Reason        string                 `json:"reason"`
}

func (h *Handler) markNotApplicable(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	start, err := parseDate(req.PeriodStart)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "period_start: " + err.Error()})
		return
	}
	end, err := parseDate(req.PeriodEnd)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "period_end: " + err.Error()})
		return
	}
	j, err := h.ledger.MarkNotApplicable(r.Context(), ledgerapp.MarkRequest{
		CaseID:        pathParam(r, "caseID"),
		DeviceCode:    req.DeviceCode,
		PeriodStart:   start,
		PeriodEnd:     end,
		EvidenceTypes: req.EvidenceTypes,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handler) listNotApplicable(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.List(r.Context(), pathParam(r, "caseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []ledger.Justification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) notApplicablePDF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	caseID := pathParam(r, "caseID")
	c, list, err := h.coverage.Justifications(r.Context(), caseID)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		h.writeError(w, r, err)
		return
	}
	data, err := export.BuildJustificationPDF(c, list)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		h.writeError(w, r, err)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "not-applicable-"+caseID+".pdf"))
	_, _ = w.Write(data)
}

func (h *Handler) atomsCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	t := catalog.EvidenceType(r.URL.Query().Get("evidence_type"))
	schema, atoms, err := h.atoms.List(r.Context(), pathParam(r, "caseID"), t)
	if err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(start))
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	header := []string{"atom_id", "row_identity", "source_category", "created_at"}
	header = append(header, schema.FieldNames()...)
	_ = writer.Write(header)
	for _, atom := range atoms {
		record := []string{atom.ID, atom.RowIdentity, atom.SourceCategory, formatTime(atom.CreatedAt)}
		for _, f := range schema.Fields {
			record = append(record, formatValue(atom.Data[f.Name]))
		}
		_ = writer.Write(record)
	}
	writer.Flush()
	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(start))
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditReader == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "audit log not configured"})
		return
	}
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxAuditLimit)
	}
	entries, err := h.auditReader.List(r.Context(), auth.TenantIDFromContext(r.Context()), r.URL.Query().Get("case_id"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return formatTime(v)
	default:
		return fmt.Sprint(v)
	}
}
