package serve

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/samsaffron/pulse/internal/render"
	"github.com/samsaffron/pulse/internal/store"
)

// ownedRecord loads the record named in the URL and checks it belongs to
// the caller. It answers the request itself when it returns nil.
func (s *Server) ownedRecord(w http.ResponseWriter, r *http.Request, respond func(http.ResponseWriter, int, string)) *store.Record {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("load site", "error", err)
		respond(w, http.StatusInternalServerError, "Failed to load site.")
		return nil
	}
	if rec == nil {
		respond(w, http.StatusNotFound, "Site not found.")
		return nil
	}
	if rec.OwnerID != identityFrom(r.Context()).ID {
		respond(w, http.StatusForbidden, "Forbidden.")
		return nil
	}
	return rec
}

func siteSummary(rec *store.Record) store.RecordSummary {
	return store.RecordSummary{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.List(r.Context(), identityFrom(r.Context()).ID)
	if err != nil {
		s.logger.Error("list sites", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load sites.")
		return
	}
	if sites == nil {
		sites = []store.RecordSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	rec := s.ownedRecord(w, r, writeError)
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": rec.ID, "name": rec.Name, "html": rec.Content})
}

type siteBody struct {
	Name *string `json:"name"`
	HTML *string `json:"html"`
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var body siteBody
	if !readJSON(w, r, &body) {
		return
	}
	name, html := "", ""
	if body.Name != nil {
		name = strings.TrimSpace(*body.Name)
	}
	if body.HTML != nil {
		html = *body.HTML
	}
	if name == "" || html == "" {
		writeError(w, http.StatusBadRequest, "Name and html are required.")
		return
	}

	rec, err := s.store.Create(r.Context(), identityFrom(r.Context()).ID, name, html)
	if err != nil {
		s.logger.Error("create site", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save site.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "site": siteSummary(rec)})
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	var body siteBody
	if !readJSON(w, r, &body) {
		return
	}
	var u store.RecordUpdate
	if body.Name != nil {
		if name := strings.TrimSpace(*body.Name); name != "" {
			u.Name = &name
		}
	}
	if body.HTML != nil && *body.HTML != "" {
		u.Content = body.HTML
	}
	if u.Empty() {
		writeError(w, http.StatusBadRequest, "Nothing to update.")
		return
	}

	if s.ownedRecord(w, r, writeError) == nil {
		return
	}
	rec, err := s.store.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil || rec == nil {
		s.logger.Error("update site", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update site.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "site": siteSummary(rec)})
}

func (s *Server) handleViewSite(w http.ResponseWriter, r *http.Request) {
	rec := s.ownedRecord(w, r, writeText)
	if rec == nil {
		return
	}
	writeHTML(w, render.Document(rec.Content))
}

func (s *Server) handleViewTranscript(w http.ResponseWriter, r *http.Request) {
	rec := s.ownedRecord(w, r, writeText)
	if rec == nil {
		return
	}
	entries, err := s.store.Transcript(r.Context(), rec.ID)
	if err != nil {
		s.logger.Error("load transcript", "error", err)
		writeText(w, http.StatusInternalServerError, "Failed to load site.")
		return
	}
	writeHTML(w, render.Transcript(rec.Name, entries))
}
