package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yegors/memorec/internal/memo"
	"github.com/yegors/memorec/pkg/logger"
)

// RouterConfig configures the viewer routes
type RouterConfig struct {
	Dir                string              // destination directory holding memo.html and the segments
	Index              SessionIndex        // optional
	Gatherer           prometheus.Gatherer // optional, enables /metrics
	CORSAllowedOrigins []string
}

// Router is the viewer router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     RouterConfig
	logger     *logger.Logger
}

// NewRouter creates a new viewer router
func NewRouter(cfg RouterConfig, log *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(cfg.Dir, cfg.Index, log),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the viewer routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)
		router.Get("/sessions/current", r.handler.GetCurrentSession)
		router.Get("/segments", r.handler.GetSegments)
		router.Get("/utterances", r.handler.GetUtterances)
	})

	if r.config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(r.config.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/"+memo.FileName, http.StatusFound)
	})

	// The memo keeps growing while recording
	router.Group(func(router chi.Router) {
		router.Use(middleware.NoCache)
		router.Get("/"+memo.FileName, r.handler.ServeMemo)
		router.Get("/{file}", r.handler.ServeSegment)
	})

	return router
}
