package api

import (
	"net/http"
	"strings"

	"comer/internal/auth"
	"comer/internal/domain"
	"comer/internal/models"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleCreateExperience(w http.ResponseWriter, r *http.Request) {
	maxFiles := s.cfg.Uploads.MaxFiles

	var in models.ExperienceInput
	if err := decodeForm(w, r, uploadLimit(maxFiles, s.cfg.Uploads.MaxFileBytes), &in); err != nil {
		s.fail(w, r, err, createStatus)
		return
	}
	uploads, err := formFiles(r, "files", maxFiles)
	if err != nil {
		s.fail(w, r, err, createStatus)
		return
	}

	exp, err := s.Experiences.Create(r.Context(), auth.UserID(r.Context()), in, uploads)
	if err != nil {
		s.fail(w, r, err, createStatus)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *HTTPServer) handleGetExperience(w http.ResponseWriter, r *http.Request) {
	view, err := s.Experiences.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleOwnerExperiences(w http.ResponseWriter, r *http.Request) {
	list, err := s.Experiences.ListByOwner(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleSampleExperiences(w http.ResponseWriter, r *http.Request) {
	list, err := s.Experiences.Sample(r.Context())
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleExperiencesByTags(w http.ResponseWriter, r *http.Request) {
	list, err := s.Experiences.ByTags(r.Context(), splitCSV(r.URL.Query().Get("tags")))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleSearchExperiences(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := models.ExperienceQuery{City: strings.TrimSpace(query.Get("city"))}

	var err error
	if q.StartDate, err = optionalDate(query.Get("startDate"), "startDate"); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if q.EndDate, err = optionalDate(query.Get("endDate"), "endDate"); err != nil {
		s.fail(w, r, err, nil)
		return
	}

	list, err := s.Experiences.Search(r.Context(), q)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleUpdateExperience(w http.ResponseWriter, r *http.Request) {
	var in models.ExperienceInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, ownerStatus)
		return
	}

	exp, err := s.Experiences.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err, ownerStatus)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *HTTPServer) handleDeleteExperience(w http.ResponseWriter, r *http.Request) {
	expID := chi.URLParam(r, "id")
	if err := s.Experiences.Delete(r.Context(), auth.UserID(r.Context()), expID); err != nil {
		s.fail(w, r, err, ownerStatus)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": expID, "status": "deleted"})
}

func (s *HTTPServer) handleToggleExperienceLike(w http.ResponseWriter, r *http.Request) {
	res, err := s.Experiences.ToggleLike(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": res.Active, "count": res.Count})
}

func optionalDate(raw, field string) (*civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return nil, domain.ValidationWithDetails("ValidationError", map[string]string{field: "must be a YYYY-MM-DD date"})
	}
	return &d, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
