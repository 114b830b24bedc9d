package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"comer/internal/auth"
	"comer/internal/config"
	"comer/internal/export"
	"comer/internal/models"
	"comer/internal/service"
	"comer/internal/validation"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// FailedTaskLister exposes sheet sync tasks that ran out of retries.
type FailedTaskLister interface {
	FailedTasks(ctx context.Context) ([]models.SyncTask, error)
}

// Pinger reports storage readiness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Experiences *service.ExperienceService
	Bookings    *service.BookingService
	Comments    *service.CommentService
	Users       *service.UserService
	Tokens      *auth.TokenService
	Exporter    *export.GuestListExporter
	SyncTasks   FailedTaskLister // nil when the sheets mirror is off
	Store       Pinger
	UploadsDir  string
}

// HTTPServer is the public REST API.
type HTTPServer struct {
	Deps
	cfg       config.Config
	apiKeys   *APIKeyAuth
	validator *validation.Validator
	router    chi.Router
	server    *http.Server
	logger    *zerolog.Logger
}

func NewHTTPServer(cfg config.Config, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{
		Deps:      deps,
		cfg:       cfg,
		apiKeys:   NewAPIKeyAuth(&cfg.API),
		validator: validation.New(),
		logger:    logger,
	}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(countRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.API.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.authenticate)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	if base := s.cfg.Uploads.PublicBaseURL; s.UploadsDir != "" && strings.HasPrefix(base, "/") {
		base = strings.TrimSuffix(base, "/")
		r.Handle(base+"/*", http.StripPrefix(base, http.FileServer(http.Dir(s.UploadsDir))))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Get("/verifyEmail/{token}", s.handleVerifyEmail)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/experiences", func(r chi.Router) {
		r.Get("/", s.handleSampleExperiences)
		r.Get("/tags", s.handleExperiencesByTags)
		r.Get("/search", s.handleSearchExperiences)
		r.Get("/profile/{userId}", s.handleOwnerExperiences)
		r.Get("/{id}", s.handleGetExperience)
		r.Get("/{id}/availability", s.handleAvailability)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/createExperience", s.handleCreateExperience)
			r.Put("/{id}/updateExperience", s.handleUpdateExperience)
			r.Put("/{id}/updateAvailability", s.handleUpdateAvailability)
			r.Delete("/{id}", s.handleDeleteExperience)
			r.Post("/booking/create-payment-intent", s.handleReserve)
			r.Get("/booking/{bookingId}", s.handleGetBooking)
			r.Delete("/cancel-booking/{bookingId}", s.handleCancelBooking)
			r.Get("/bookedExperience/{userId}", s.handleBookedExperiences)
		})
	})

	r.Route("/comments", func(r chi.Router) {
		r.Get("/{id}", s.handleListComments)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/", s.handleCreateComment)
			r.Delete("/delete/{id}", s.handleDeleteComment)
			r.Put("/{id}/like", s.handleCommentReaction(models.ReactionLike))
			r.Put("/{id}/dislike", s.handleCommentReaction(models.ReactionDislike))
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/comments/{id}", s.handleUserComments)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/{id}", s.handleGetUser)
			r.Put("/update/{id}", s.handleUpdateUser)
			r.Delete("/delete/{id}", s.handleDeleteUser)
			r.Put("/likes/{id}", s.handleToggleExperienceLike)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(s.apiKeys.Require(permExport)).Get("/experiences/{id}/bookings.xlsx", s.handleExportGuestList)
		r.With(s.apiKeys.Require(permSync)).Get("/sync/failed", s.handleFailedSyncTasks)
	})

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.PingContext(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
