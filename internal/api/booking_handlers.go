package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"comer/internal/auth"
	"comer/internal/domain"
	"comer/internal/export"
	"comer/internal/models"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	l, err := s.Bookings.Availability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *HTTPServer) handleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	var req models.WindowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, ownerStatus)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.fail(w, r, err, ownerStatus)
		return
	}

	l, err := s.Bookings.RedefineAvailability(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), req.Window())
	if err != nil {
		s.fail(w, r, err, ownerStatus)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req models.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, reserveStatus)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.fail(w, r, err, reserveStatus)
		return
	}

	claims := auth.FromContext(r.Context())
	req.UserID = claims.UserID
	if req.UserEmail == "" {
		req.UserEmail = claims.Email
	}

	b, err := s.Bookings.Reserve(r.Context(), req)
	if err != nil {
		s.fail(w, r, err, reserveStatus)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Booking(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "bookingId"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Cancel(r.Context(), chi.URLParam(r, "bookingId"), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleBookedExperiences(w http.ResponseWriter, r *http.Request) {
	list, err := s.Bookings.BookedByUser(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleExportGuestList writes the xlsx guest list to the exports directory
// and serves that file.
func (s *HTTPServer) handleExportGuestList(w http.ResponseWriter, r *http.Request) {
	if s.Exporter == nil {
		s.fail(w, r, domain.NotFound("Export"), nil)
		return
	}

	path, err := s.Exporter.Save(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.fail(w, r, domain.Internal("failed to open export", err), nil)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), time.Now(), f)
}

func (s *HTTPServer) handleFailedSyncTasks(w http.ResponseWriter, r *http.Request) {
	tasks := []models.SyncTask{}
	if s.SyncTasks != nil {
		var err error
		if tasks, err = s.SyncTasks.FailedTasks(r.Context()); err != nil {
			s.fail(w, r, err, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}
