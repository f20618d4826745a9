// Package api exposes the setup builder over HTTP: a chi router in front of
// the domain services, JSON problem documents for errors, and graceful
// shutdown for deploys.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"so101-builder/internal/catalog"
	"so101-builder/internal/comparison"
	"so101-builder/internal/export"
	"so101-builder/internal/pricing"
	"so101-builder/internal/recommend"
	"so101-builder/internal/wizard"
	"so101-builder/pkg/apperr"
)

// ===== DEPENDENCIES =====

// Catalog is the component catalog surface.
type Catalog interface {
	List(ctx context.Context, f catalog.ListFilter) (*catalog.ListResult, error)
	Get(ctx context.Context, idOrSlug string) (*catalog.ComponentDetail, error)
	Categories(ctx context.Context) ([]catalog.CategoryWithCount, error)
	Defaults(ctx context.Context, armType string) (*catalog.DefaultBuild, error)
}

// Wizard runs guided setup sessions.
type Wizard interface {
	Start(ctx context.Context) (*wizard.Setup, error)
	Get(ctx context.Context, id uuid.UUID) (*wizard.Setup, error)
	Steps() []wizard.StepInfo
	SubmitStep(ctx context.Context, id uuid.UUID, step int, answer json.RawMessage) (*wizard.Setup, error)
	Reset(ctx context.Context, id uuid.UUID) (*wizard.Setup, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Recommender generates and serves setup recommendations.
type Recommender interface {
	Generate(ctx context.Context, setupID uuid.UUID) (*recommend.Recommendation, error)
	Regenerate(ctx context.Context, setupID uuid.UUID) (*recommend.Recommendation, error)
	Get(ctx context.Context, setupID uuid.UUID) (*recommend.Recommendation, error)
	Chat(ctx context.Context, setupID uuid.UUID, message string) (*recommend.ChatReply, error)
}

// Pricing aggregates vendor quotes, history, and refreshes.
type Pricing interface {
	ForSetup(ctx context.Context, setupID uuid.UUID) (*pricing.SetupPricing, error)
	ForComponent(ctx context.Context, componentID int64) (*pricing.ComponentPricing, error)
	History(ctx context.Context, componentID int64, since time.Time) ([]pricing.Observation, error)
	Refresh(ctx context.Context, componentIDs []int64) (*pricing.RefreshReport, error)
}

// Comparer builds side-by-side component views.
type Comparer interface {
	Compare(ctx context.Context, ids []int64) (*comparison.Result, error)
}

// Exporter produces setup export formats.
type Exporter interface {
	JSON(ctx context.Context, setupID uuid.UUID, versionConstraint string) (*export.Bundle, error)
	ShoppingListFor(ctx context.Context, setupID uuid.UUID) (*export.ShoppingList, error)
	PDF(ctx context.Context, setupID uuid.UUID) ([]byte, error)
	Archive(ctx context.Context, setupID uuid.UUID) (*export.ArchiveRef, error)
}

// ReadyCheck is one readiness probe, keyed by dependency name.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the domain services the server fronts.
type Deps struct {
	Catalog    Catalog
	Wizard     Wizard
	Recommend  Recommender
	Pricing    Pricing
	Comparison Comparer
	Export     Exporter
	Ready      []ReadyCheck
}

// ===== SERVER =====

// Config holds server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxRequestSize  int64
	CORSOrigins     []string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxRequestSize:  1 << 20, // request bodies here are small JSON
		CORSOrigins:     []string{"*"},
	}
}

// Server is the HTTP front of the setup builder.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     *Config
	log        zerolog.Logger

	catalog    Catalog
	wizard     Wizard
	recommend  Recommender
	pricing    Pricing
	comparison Comparer
	export     Exporter
	ready      []ReadyCheck
}

// NewServer creates the API server and builds its routes.
func NewServer(deps Deps, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:     config,
		log:        logger,
		catalog:    deps.Catalog,
		wizard:     deps.Wizard,
		recommend:  deps.Recommend,
		pricing:    deps.Pricing,
		comparison: deps.Comparison,
		export:     deps.Export,
		ready:      deps.Ready,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.config.Addr).Msg("http server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown runs the server and drains in-flight requests
// for up to ShutdownTimeout after SIGINT or SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		s.log.Info().Str("signal", sig.String()).Msg("shutting down http server")
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// ===== ROUTES =====

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))
	r.Use(s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "Method Not Allowed",
			r.Method+" is not allowed on "+r.URL.Path)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/components", func(r chi.Router) {
			r.Get("/", s.handleListComponents)
			r.Get("/categories", s.handleCategories)
			r.Get("/so101-defaults", s.handleDefaults)
			r.Get("/{id}", s.handleGetComponent)
		})

		r.Route("/wizard", func(r chi.Router) {
			r.Post("/start", s.handleWizardStart)
			r.Get("/steps", s.handleWizardSteps)
			r.Get("/{setupID}", s.handleWizardGet)
			r.Post("/{setupID}/step/{n}", s.handleWizardSubmit)
			r.Post("/{setupID}/reset", s.handleWizardReset)
			r.Delete("/{setupID}", s.handleWizardDelete)
		})

		r.Route("/setups/{setupID}", func(r chi.Router) {
			r.Post("/recommendation", s.handleGenerateRecommendation)
			r.Get("/recommendation", s.handleGetRecommendation)
			r.Post("/recommendation/regenerate", s.handleRegenerateRecommendation)
			r.Post("/recommendation/chat", s.handleRecommendationChat)
			r.Get("/pricing", s.handleSetupPricing)
			r.Route("/export", func(r chi.Router) {
				r.Get("/json", s.handleExportJSON)
				r.Get("/shopping-list", s.handleExportShoppingList)
				r.Get("/pdf", s.handleExportPDF)
				r.Post("/archive", s.handleExportArchive)
			})
		})

		r.Route("/pricing", func(r chi.Router) {
			r.Get("/components/{id}", s.handleComponentPricing)
			r.Get("/components/{id}/history", s.handlePriceHistory)
			r.Post("/refresh", s.handleRefreshPrices)
		})

		r.Post("/comparison", s.handleComparison)
	})

	return r
}

// ===== MIDDLEWARE =====

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ===== HEALTH ENDPOINTS =====

// handleHealthz is liveness: it touches no dependencies.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz pings every configured dependency.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, probe := range s.ready {
		if err := probe.Check(ctx); err != nil {
			s.log.Error().Err(err).Str("dependency", probe.Name).Msg("readiness probe failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": probe.Name + " unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
