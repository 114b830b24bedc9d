package api

import (
	"net/http"
	"time"

	"comer/internal/auth"
	"comer/internal/models"
	"comer/internal/service"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}

	u, err := s.Users.Signup(r.Context(), req)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}

	sess, err := s.Users.Login(r.Context(), req)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, sess.User)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}

	sess, err := s.Users.Refresh(r.Context(), token)
	if err != nil {
		s.clearSessionCookies(w)
		s.fail(w, r, err, nil)
		return
	}
	s.setSessionCookies(w, sess)
	writeJSON(w, http.StatusOK, sess.User)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}
	if err := s.Users.Logout(r.Context(), token); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var p models.ProfileUpdate
	if err := decodeForm(w, r, uploadLimit(1, s.cfg.Uploads.MaxFileBytes), &p); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	pictures, err := formFiles(r, "profilePicture", 1)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	var picture *service.Upload
	if len(pictures) == 1 {
		picture = &pictures[0]
	}

	u, err := s.Users.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), p, picture)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := s.Users.Delete(r.Context(), auth.UserID(r.Context()), userID); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"id": userID, "status": "deactivated"})
}

func (s *HTTPServer) setSessionCookies(w http.ResponseWriter, sess *service.Session) {
	http.SetCookie(w, s.cookie(accessTokenCookie, sess.AccessToken, time.Now().Add(s.Tokens.AccessTTL())))
	http.SetCookie(w, s.cookie(refreshTokenCookie, sess.RefreshToken, sess.RefreshExpiresAt))
}

func (s *HTTPServer) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		c := s.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (s *HTTPServer) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.Session.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
