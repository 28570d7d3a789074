package apihttp

import (
	"net/http"

	"psur-evidence/internal/audit"
	reconapp "psur-evidence/internal/reconciliation/application"
)

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req reconapp.StartRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.sessions.Start(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), pathParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) discardSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Discard(r.Context(), pathParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setSessionMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetField string `json:"target_field"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.sessions.SetMapping(r.Context(), pathParam(r, "sessionID"), pathParam(r, "source"), req.TargetField)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) removeSessionMapping(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.RemoveMapping(r.Context(), pathParam(r, "sessionID"), pathParam(r, "source"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) verifySession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Verify(r.Context(), pathParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) saveSessionProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	sessionID := pathParam(r, "sessionID")
	profile, err := h.sessions.SaveProfile(r.Context(), sessionID, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logAudit(r, audit.ActionProfileSave, "mapping_profile", profile.ID, "", map[string]any{
		"name":          profile.Name,
		"evidence_type": profile.EvidenceType,
		"session_id":    sessionID,
	})
	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) commitSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Commit(r.Context(), pathParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
