// Package api exposes the job queue over HTTP/JSON.
//
// Routes are grouped per queue type:
//
//	POST   /v1/queues/{queueType}/jobs                      enqueue
//	GET    /v1/queues/{queueType}/jobs?ids=1,2              get by ids
//	GET    /v1/queues/{queueType}/jobs/{jobId}              get by id
//	POST   /v1/queues/{queueType}/jobs/{jobId}/cancel       cancel by id
//	GET    /v1/queues/{queueType}/groups/{groupId}/jobs     get by group
//	POST   /v1/queues/{queueType}/groups/{groupId}/cancel   cancel by group
//	POST   /v1/queues/{queueType}/leases                    dequeue
//	POST   /v1/queues/{queueType}/leases/keepalive          keep alive
//	POST   /v1/queues/{queueType}/leases/complete           complete
//
// Lookups take ?definition=true to include job definitions. Cron entries
// are under /v1/crons when a scheduler is configured, and /healthz pings
// the record store.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/lakequeue/cron"
	"github.com/xraph/lakequeue/engine"
)

// API wires the HTTP handlers to an engine.
type API struct {
	eng       *engine.Engine
	scheduler *cron.Scheduler
	logger    *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithScheduler exposes the cron entries of s.
func WithScheduler(s *cron.Scheduler) Option {
	return func(a *API) { a.scheduler = s }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API over eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes into r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.health)

	r.Route("/v1/queues/{queueType}", func(r chi.Router) {
		r.Post("/jobs", a.enqueue)
		r.Get("/jobs", a.getJobs)
		r.Get("/jobs/{jobId}", a.getJob)
		r.Post("/jobs/{jobId}/cancel", a.cancelJob)

		r.Get("/groups/{groupId}/jobs", a.getGroup)
		r.Post("/groups/{groupId}/cancel", a.cancelGroup)

		r.Post("/leases", a.dequeue)
		r.Post("/leases/keepalive", a.keepAlive)
		r.Post("/leases/complete", a.complete)
	})

	if a.scheduler != nil {
		r.Route("/v1/crons", func(r chi.Router) {
			r.Get("/", a.listCrons)
			r.Get("/{name}", a.getCron)
			r.Post("/{name}/enable", a.enableCron)
			r.Post("/{name}/disable", a.disableCron)
			r.Delete("/{name}", a.deleteCron)
		})
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
