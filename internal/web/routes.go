package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/pawtrail/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	enrollmentHandler := handlers.NewEnrollmentHandler(s.manager, s.log)
	searchHandler := handlers.NewSearchHandler(s.engine)
	identitiesHandler := handlers.NewIdentitiesHandler(s.identities)
	statsHandler := handlers.NewStatsHandler(s.searchLog)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enrollments", enrollmentHandler.Start)
		r.Get("/enrollments/{token}", enrollmentHandler.Get)
		r.Post("/enrollments/{token}/frames", enrollmentHandler.SubmitFrame)
		r.Post("/enrollments/{token}/complete", enrollmentHandler.Complete)
		r.Delete("/enrollments/{token}", enrollmentHandler.Abort)

		r.Post("/search", searchHandler.Search)
		r.Get("/identities", identitiesHandler.List)
		r.Get("/stats", statsHandler.Get)
	})
}
