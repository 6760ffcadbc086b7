package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/config"
	"github.com/openfroyo/guardrails/pkg/engine"
	"github.com/openfroyo/guardrails/pkg/guardrails"
	"github.com/openfroyo/guardrails/pkg/policy"
	"github.com/openfroyo/guardrails/pkg/telemetry"
)

// Service is the engine surface the API exposes.
type Service interface {
	Evaluate(ctx context.Context, req guardrails.Request) (*engine.EvaluationResult, error)
	GetEvaluation(ctx context.Context, id string) (*engine.EvaluationResult, error)
	GetEvaluations(ctx context.Context, blueprintID string, limit int) ([]*engine.EvaluationResult, error)
	AutoRemediate(ctx context.Context, evaluationID string, violationIDs ...string) ([]engine.RemediationSuggestion, error)
	GetPolicies(filter policy.Filter) []policy.Policy
	GetPolicy(id string) (policy.Policy, bool)
	GetComplianceScore(ctx context.Context, blueprintID string) (*engine.ComplianceScore, error)
	Predict(ctx context.Context, blueprintID string) ([]engine.Prediction, error)
	DetectDrift(ctx context.Context, resourceID string, state map[string]interface{}) (*engine.DriftResult, error)
	Rebaseline(ctx context.Context, resourceID string, state map[string]interface{}) (*engine.DriftBaseline, error)
}

var _ Service = (*guardrails.Engine)(nil)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options wires the API's dependencies.
type Options struct {
	Config config.ServerConfig

	// Metrics is served at MetricsPath and records request metrics. Nil disables both.
	Metrics     *telemetry.Metrics
	MetricsPath string

	// Health backs /healthz. Nil reports healthy.
	Health HealthChecker
}

// Server is the guardrails HTTP API.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger zerolog.Logger
	cfg    config.ServerConfig
}

// New builds the router over svc.
func New(svc Service, logger zerolog.Logger, opts Options) *Server {
	logger = logger.With().Str("component", "api-server").Logger()
	h := &handler{svc: svc, health: opts.Health, maxBody: opts.Config.MaxBodyBytes}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(logger, opts.Metrics))
	router.Use(middleware.Recoverer)
	if opts.Config.RequestTimeout > 0 {
		router.Use(middleware.Timeout(opts.Config.RequestTimeout))
	}

	router.Get("/healthz", h.healthz)
	if opts.Metrics != nil && opts.MetricsPath != "" {
		router.Method(http.MethodGet, opts.MetricsPath, opts.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/evaluations", func(r chi.Router) {
			r.Post("/", h.evaluate)
			r.Get("/", h.listEvaluations)
			r.Get("/{id}", h.getEvaluation)
			r.Post("/{id}/remediations", h.remediate)
		})
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.listPolicies)
			r.Get("/{id}", h.getPolicy)
		})
		r.Route("/blueprints/{id}", func(r chi.Router) {
			r.Get("/compliance", h.complianceScore)
			r.Get("/predictions", h.predictions)
		})
		r.Route("/drift/{resourceId}", func(r chi.Router) {
			r.Post("/", h.detectDrift)
			r.Put("/baseline", h.rebaseline)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, engine.NewNotFoundError("route", r.URL.Path))
	})

	return &Server{
		router: router,
		logger: logger,
		cfg:    opts.Config,
		server: &http.Server{
			Addr:         opts.Config.Addr,
			Handler:      router,
			ReadTimeout:  opts.Config.ReadTimeout,
			WriteTimeout: opts.Config.WriteTimeout,
		},
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)

	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown initiated")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("Graceful shutdown failed")
			if cerr := s.server.Close(); cerr != nil {
				return cerr
			}
			return err
		}
	}

	return nil
}
