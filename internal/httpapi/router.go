package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"runcore/internal/auth"
	"runcore/internal/courses"
	"runcore/internal/httpapi/middleware"
	"runcore/internal/importpipeline"
	"runcore/internal/ingest"
	"runcore/internal/platform/metrics"
	"runcore/internal/platform/ratelimit"
	"runcore/internal/ranking"
	"runcore/internal/spatial"
)

// maxImportUploadBytes is the hard 20 MiB cap on GPX/FIT uploads (spec §6).
const maxImportUploadBytes = 20 << 20

// Dependencies bundles every collaborator the HTTP surface delegates to.
// It is built once in cmd/server/main.go and passed to NewRouter, rather
// than reached for through module-level globals (spec §9 "Service
// singletons / global state").
type Dependencies struct {
	Auth     *auth.Service
	Ingest   *ingest.Service
	Imports  *importpipeline.Service
	Courses  *courses.Service
	Spatial  *spatial.Service
	Rankings ranking.Repository
	Metrics  *metrics.Registry
	Limiter  ratelimit.Limiter
}

// NewRouter builds the full chi route tree for spec §6/§6.1.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover())
	r.Use(middleware.Logging())
	if deps.Limiter != nil {
		r.Use(middleware.RateLimit(deps.Limiter))
	}
	r.Use(middleware.Metrics(deps.Metrics))

	h := &handlers{deps: deps}

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)
	if deps.Metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { deps.Metrics.Handler().ServeHTTP(w, r) })
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/login", h.login)
		api.Post("/auth/refresh", h.refresh)

		api.Get("/courses", h.listCourses)
		api.Get("/courses/nearby", h.nearbyCourses)
		api.Get("/courses/bounds", h.coursesInBounds)
		api.Get("/courses/{id}", h.getCourse)
		api.Get("/courses/{id}/rankings", h.courseRankings)
		api.Get("/heatmap", h.heatmap)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.Auth(deps.Auth))

			protected.Post("/auth/logout", h.logout)
			protected.Post("/courses", h.createCourse)

			protected.Post("/runs/sessions", h.createSession)
			protected.Post("/runs/sessions/{id}/chunks", h.uploadChunk)
			protected.Post("/runs/sessions/{id}/chunks/batch", h.batchUploadChunks)
			protected.Post("/runs/sessions/{id}/complete", h.completeSession)
			protected.Post("/runs/sessions/{id}/recover", h.recoverSession)

			protected.Post("/imports/upload", h.uploadImport)
		})
	})

	return r
}

type handlers struct {
	deps Dependencies
}
