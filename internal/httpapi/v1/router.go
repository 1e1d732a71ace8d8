// Package v1 wires the versioned HTTP surface of the mill meter service.
// Handlers stay thin and delegate every business rule to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	base "github.com/tinoosan/millmeter/internal/httpapi"
	"github.com/tinoosan/millmeter/internal/lock"
	"github.com/tinoosan/millmeter/internal/service/correction"
	"github.com/tinoosan/millmeter/internal/service/lookup"
	"github.com/tinoosan/millmeter/internal/service/recorder"
	"github.com/tinoosan/millmeter/internal/service/report"
)

// Server wires handlers and middleware using Chi.
type Server struct {
	recorder  recorder.Service
	corrector correction.Service
	lookups   lookup.Service
	reports   report.Service
	ready     ReadyChecker
	validate  *validator.Validate
	log       *slog.Logger
	rt        *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// A nil locker serialises timelines within this process only.
func New(backend Backend, locker lock.Locker, auth AuthConfig, logger *slog.Logger) *Server {
	if locker == nil {
		locker = lock.NewLocal()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(base.RequestLogger(logger))
	r.Use(base.Recoverer(logger))
	r.Use(metricsMiddleware)
	if mw := authJWT(auth); mw != nil {
		r.Use(mw)
	}

	s := &Server{
		recorder:  recorder.New(backend, locker, logger),
		corrector: correction.New(backend, locker, logger),
		lookups:   lookup.New(backend),
		reports:   report.New(backend),
		ready:     backend,
		validate:  newValidator(),
		log:       logger,
		rt:        r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())

	s.rt.Route("/v1", func(r chi.Router) {
		r.Get("/dictionary/categories", s.getCategoriesDictionary)

		r.Get("/lookups/{table}", s.listLookups)
		r.Post("/lookups/{table}", s.createLookup)
		r.Put("/lookups/{table}/{id}", s.updateLookup)
		r.Delete("/lookups/{table}/{id}", s.deleteLookup)

		r.Post("/submissions", s.postSubmission)
		r.Post("/corrections", s.postCorrection)
		r.With(s.validateTimelineQuery()).Get("/ledger/{category}", s.getTimeline)

		r.With(s.validateReportQuery()).Get("/reports/{category}", s.getReport)
		r.With(s.validateReportQuery()).Get("/reports/{category}/export", s.exportReport)
		r.With(s.validateDashboardQuery()).Get("/dashboard", s.getDashboard)
	})
}
