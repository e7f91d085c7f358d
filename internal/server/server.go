// Package server implements the lamacheck status API.
//
// The API is read-only apart from POST /api/v1/cycles, which starts an
// update cycle in the background:
//
//	GET  /healthz
//	GET  /api/v1/artifacts
//	GET  /api/v1/artifacts/{id}
//	GET  /api/v1/repositories?state=invalid|empty
//	GET  /api/v1/status
//	POST /api/v1/cycles
//	GET  /metrics
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/lamacheck/pkg/buildinfo"
	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/updater"
)

// Engine is the part of updater.Engine the server drives.
type Engine interface {
	Status() updater.Status
	Running() bool
	RunUpdateCycle(ctx context.Context) (int, error)
}

// Options configures a Server.
type Options struct {
	Addr     string
	Gatherer prometheus.Gatherer // metrics source, default prometheus.DefaultGatherer
	Logger   *log.Logger
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Server serves the status API.
type Server struct {
	reg    *registry.Registry
	engine Engine
	opts   Options
	router chi.Router

	// base is the context background cycles run under.
	base context.Context
}

// New returns a Server over reg and engine. Cycles started through the API
// run under ctx.
func New(ctx context.Context, reg *registry.Registry, engine Engine, opts Options) *Server {
	s := &Server{reg: reg, engine: engine, opts: opts.WithDefaults(), base: ctx}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/artifacts", s.handleArtifacts)
		r.Get("/artifacts/{id}", s.handleArtifact)
		r.Get("/repositories", s.handleRepositories)
		r.Get("/status", s.handleStatus)
		r.Post("/cycles", s.handleStartCycle)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("status API listening", "addr", s.opts.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.opts.Logger.Info("shutting down status API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string         `json:"status"`
		Build  buildinfo.Info `json:"build"`
	}{"ok", buildinfo.Get()})
}

// artifactSummary is the list view of an artifact.
type artifactSummary struct {
	ID            string          `json:"id"`
	Packaging     model.Packaging `json:"packaging,omitempty"`
	LatestRelease string          `json:"latest_release,omitempty"`
	LatestBeta    string          `json:"latest_beta,omitempty"`
	Repos         int             `json:"repos"`
	PURL          string          `json:"purl"`
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	plugins := r.URL.Query().Get("plugins") == "true"
	artifacts := s.reg.Artifacts()
	out := make([]artifactSummary, 0, len(artifacts))
	for _, a := range artifacts {
		if plugins && !a.IsPlugin() {
			continue
		}
		sum := artifactSummary{
			ID:        a.ID(),
			Packaging: a.Packaging,
			Repos:     len(a.Repos),
			PURL:      a.PURL(),
		}
		if a.LatestRelease != nil {
			sum.LatestRelease = a.LatestRelease.Original()
		}
		if a.LatestBeta != nil {
			sum.LatestBeta = a.LatestBeta.Original()
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid artifact id"))
		return
	}
	a := s.reg.Artifact(id)
	if a == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no such artifact: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// repositoryView is a repository with the number of artifacts desiring it.
type repositoryView struct {
	model.Repository
	Artifacts int `json:"artifacts"`
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	switch state {
	case "", "invalid", "empty":
	default:
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "state must be invalid or empty, got %q", state))
		return
	}

	counts := s.reg.ArtifactCountPerRepository()
	out := []repositoryView{}
	for _, repo := range s.reg.Repositories() {
		n := counts[repo.ID]
		if state == "invalid" && !repo.Invalid {
			continue
		}
		if state == "empty" && n > 0 {
			continue
		}
		out = append(out, repositoryView{Repository: repo, Artifacts: n})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleStartCycle(w http.ResponseWriter, _ *http.Request) {
	if s.engine.Running() {
		writeError(w, updater.ErrCycleRunning)
		return
	}
	go func() {
		n, err := s.engine.RunUpdateCycle(s.base)
		switch {
		case errors.Is(err, errors.ErrCodeCycleRunning):
			s.opts.Logger.Debug("cycle request raced with a running cycle")
		case err != nil:
			s.opts.Logger.Error("update cycle failed", "error", err)
		default:
			s.opts.Logger.Info("update cycle finished", "updated", n)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, httpStatus(code), errorBody{Code: code, Message: errors.UserMessage(err)})
}

// httpStatus maps an error code to the response status.
func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound, errors.ErrCodeUnknownArtifact, errors.ErrCodeUnknownRepository:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidCoordinate, errors.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case errors.ErrCodeCycleRunning:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
