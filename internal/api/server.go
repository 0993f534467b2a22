// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/archive"
	"github.com/eHtmlu/peak-publisher/internal/catalog"
	"github.com/eHtmlu/peak-publisher/internal/core"
	"github.com/eHtmlu/peak-publisher/internal/distribution"
	"github.com/eHtmlu/peak-publisher/internal/jobs"
	"github.com/eHtmlu/peak-publisher/internal/store"
	"github.com/eHtmlu/peak-publisher/internal/upload"
)

// Server holds the dependencies for our API.
type Server struct {
	app       *core.App
	logger    *zap.Logger
	store     *store.Store
	sessions  *upload.SessionStore
	pipeline  *upload.Pipeline
	finalizer *upload.Finalizer
	catalog   *catalog.Service
	resolver  *distribution.Resolver
	jobs      *jobs.JobManager
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Jobs returns the job manager.
func (s *Server) Jobs() *jobs.JobManager {
	return s.jobs
}

// NewServer wires the services on top of the shared application state.
func NewServer(app *core.App) *Server {
	cfg := app.Config
	logger := app.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := store.New(app.DB)
	sessions := upload.NewSessionStore(cfg.Uploads.Path, cfg.UploadTTL(), logger.Named("sessions"))
	cat := catalog.NewService(st, cfg.Storage.Path, logger.Named("catalog"))

	s := &Server{
		app:      app,
		logger:   logger,
		store:    st,
		sessions: sessions,
		pipeline: upload.NewPipeline(sessions, st, archive.New(logger.Named("archive")),
			upload.Options{Ingest: cfg.Ingest, PublicURL: cfg.PublicURL}, logger.Named("pipeline"), app.Metrics),
		finalizer: upload.NewFinalizer(sessions, st, cfg.Storage.Path, logger.Named("finalize"), app.Metrics),
		catalog:   cat,
		resolver:  distribution.NewResolver(st, cfg.Storage.Path, logger.Named("distribution"), app.Metrics),
		jobs:      jobs.NewManager(logger.Named("jobs")),
	}
	jobs.RegisterMaintenance(s.jobs, sessions, cat, app.Metrics)
	return s
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/health", s.handleHealth)
	if s.app.Metrics != nil {
		r.Handle("/metrics", s.app.Metrics.Handler())
	}

	r.Route("/api/admin", func(r chi.Router) {
		r.With(s.limitUploadSize).Post("/uploads", s.handleUploadPhase)
		r.Post("/uploads/finalize", s.handleFinalizeUpload)
		r.Post("/uploads/discard", s.handleDiscardUpload)

		r.Get("/plugins", s.handleListPlugins)
		r.Get("/plugins/{pluginID}", s.handleGetPlugin)
		r.Put("/plugins/{pluginID}", s.handleUpdatePluginStatus)
		r.Delete("/plugins/{pluginID}", s.handleDeletePlugin)

		r.Put("/releases/{releaseID}", s.handleUpdateReleaseStatus)
		r.Delete("/releases/{releaseID}", s.handleDeleteRelease)
		r.Get("/releases/{releaseID}/download", s.handleDownloadRelease)

		r.Get("/jobs/status", s.handleGetAdminJobsStatus)
		r.Post("/jobs/run", s.handleRunAdminJob)
	})

	r.Route("/api/v1/plugins", func(r chi.Router) {
		r.Post("/update-check", s.handleUpdateCheck)
		r.Get("/info", s.handleInfo)
		r.Post("/info", s.handleInfo)
		r.Get("/download/{slug}", s.handleDownload)
		r.Get("/download/{slug}/{version}", s.handleDownload)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
