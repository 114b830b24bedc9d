package api

import (
	"net/http"

	"comer/internal/auth"
	"comer/internal/models"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	list, err := s.Comments.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleUserComments(w http.ResponseWriter, r *http.Request) {
	list, err := s.Comments.ListByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req models.CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}

	c, err := s.Comments.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	if err := s.Comments.Delete(r.Context(), auth.UserID(r.Context()), commentID); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": commentID, "status": "deleted"})
}

func (s *HTTPServer) handleCommentReaction(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Comments.ToggleReaction(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), kind)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": res.Active, "count": res.Count})
	}
}
