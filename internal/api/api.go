// Package api serves the HTTP/JSON surface. Every response uses the
// {success, data, error, meta} envelope; service errors carry their
// stable code and map to HTTP status by kind.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/kanbanhq/kanban/internal/config"
	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/telemetry"
)

// Server owns the REST routes and their middleware.
type Server struct {
	svc     *service.Service
	store   storage.Store
	log     zerolog.Logger
	auth    *authenticator
	limiter *rateLimiter
	metrics *telemetry.Metrics
}

// New builds the API server. metrics may be nil.
func New(svc *service.Service, store storage.Store, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		svc:     svc,
		store:   store,
		log:     logger.With().Str("component", "api").Logger(),
		auth:    newAuthenticator(cfg.Auth),
		limiter: newRateLimiter(cfg.Server.RequestsPerMin),
		metrics: metrics,
	}
}

// Routes assembles the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.createTask)
			r.Get("/", s.listTasks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Patch("/", s.updateTask)
				r.Delete("/", s.deleteTask)
				r.Post("/move", s.moveTask)
				r.Post("/archive", s.archiveTask)
				r.Post("/subtasks", s.createSubtask)
				r.Get("/subtasks", s.listSubtasks)
				r.Post("/dependencies", s.addDependency)
				r.Get("/dependencies", s.listDependencies)
				r.Delete("/dependencies/{depID}", s.removeDependency)
				r.Post("/notes", s.addNote)
				r.Get("/notes", s.listNotes)
				r.Put("/tags/{tagID}", s.tagTask)
				r.Delete("/tags/{tagID}", s.untagTask)
			})
		})

		r.Route("/boards", func(r chi.Router) {
			r.Post("/", s.createBoard)
			r.Get("/", s.listBoards)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getBoard)
				r.Patch("/", s.updateBoard)
				r.Delete("/", s.deleteBoard)
				r.Post("/columns", s.createColumn)
			})
		})
		r.Patch("/columns/{id}", s.updateColumn)
		r.Delete("/columns/{id}", s.deleteColumn)

		r.Route("/notes", func(r chi.Router) {
			r.Get("/search", s.searchNotes)
			r.Patch("/{id}", s.updateNote)
			r.Delete("/{id}", s.deleteNote)
			r.Post("/{id}/pin", s.pinNote)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Post("/", s.createTag)
			r.Get("/", s.listTags)
			r.Patch("/{id}", s.updateTag)
			r.Delete("/{id}", s.deleteTag)
		})

		r.Route("/priorities", func(r chi.Router) {
			r.Get("/next", s.nextTask)
			r.Post("/calculate", s.calculatePriorities)
		})

		r.Route("/context", func(r chi.Router) {
			r.Get("/", s.boardContext)
			r.Get("/task/{id}", s.taskContext)
			r.Get("/summary", s.contextSummary)
		})

		r.Route("/repositories", func(r chi.Router) {
			r.Post("/", s.createMapping)
			r.Get("/", s.listMappings)
			r.Get("/resolve", s.resolveBoard)
			r.Delete("/{id}", s.deleteMapping)
		})

		r.Route("/backup", func(r chi.Router) {
			r.Post("/", s.triggerBackup)
			r.Get("/", s.listBackups)
			r.Post("/restore", s.restoreBackup)
			r.Delete("/{name}", s.deleteBackup)
		})

		r.Get("/database/health", s.databaseHealth)
	})
	return r
}

// logRequests emits one structured line per request and records the
// request counter.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		if s.metrics != nil {
			s.metrics.HTTPRequest(r.Context(), r.Method, route, ww.Status())
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) databaseHealth(w http.ResponseWriter, r *http.Request) {
	health := s.store.HealthCheck(r.Context())
	body := map[string]any{
		"connected":  health.Connected,
		"responsive": health.Responsive,
		"stats":      health.Stats,
	}
	if version, err := s.store.DataVersion(r.Context()); err == nil {
		body["data_version"] = version
	}
	status := http.StatusOK
	if !health.Connected || !health.Responsive {
		status = http.StatusServiceUnavailable
	}
	respond(w, r, status, body)
}

// pathID parses the named int64 URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.Validationf("invalid %s", name)
	}
	return id, nil
}
