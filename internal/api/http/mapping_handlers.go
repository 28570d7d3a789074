package apihttp

import (
	"net/http"

	"psur-evidence/internal/audit"
	"psur-evidence/internal/catalog"
	mappingapp "psur-evidence/internal/mapping/application"
	mapping "psur-evidence/internal/mapping/domain"
)

type schemaView struct {
	catalog.Schema
	Aliases map[string][]string `json:"aliases,omitempty"`
}

type catalogResponse struct {
	Version    string                   `json:"version"`
	Types      []schemaView             `json:"types"`
	Categories []catalog.SourceCategory `json:"categories"`
	Templates  []catalog.Template       `json:"templates"`
}

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{
		Version:    h.catalog.Version(),
		Categories: h.catalog.Categories(),
		Templates:  h.catalog.Templates(),
	}
	for _, t := range h.catalog.Types() {
		schema, _ := h.catalog.Schema(t)
		view := schemaView{Schema: schema}
		for _, f := range schema.Fields {
			if aliases := h.catalog.Aliases(f.Name); len(aliases) > 0 {
				if view.Aliases == nil {
					view.Aliases = make(map[string][]string)
				}
				view.Aliases[f.Name] = aliases
			}
		}
		resp.Types = append(resp.Types, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

type columnsRequest struct {
	EvidenceType catalog.EvidenceType `json:"evidence_type"`
	Columns      []string             `json:"columns"`
}

func (h *Handler) autoMap(w http.ResponseWriter, r *http.Request) {
	var req columnsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.automap.AutoMap(r.Context(), req.EvidenceType, req.Columns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type matchResponse struct {
	Match   *mapping.ProfileMatch `json:"match"`
	Mapping *mapping.Config       `json:"mapping,omitempty"`
}

func (h *Handler) matchProfile(w http.ResponseWriter, r *http.Request) {
	var req columnsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	match, err := h.profiles.FindMatch(r.Context(), req.EvidenceType, req.Columns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := matchResponse{Match: match}
	if match != nil {
		if cfg, ok := h.profiles.Apply(match.Profile, req.Columns); ok {
			resp.Mapping = &cfg
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request) {
	var req mappingapp.SaveProfileRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.profiles.Save(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logAudit(r, audit.ActionProfileSave, "mapping_profile", profile.ID, "", map[string]any{
		"name":          profile.Name,
		"evidence_type": profile.EvidenceType,
		"verified":      profile.Verified,
	})
	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	t := catalog.EvidenceType(r.URL.Query().Get("evidence_type"))
	profiles, err := h.profiles.List(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []mapping.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), pathParam(r, "profileID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
