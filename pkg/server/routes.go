package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter creates the chi router with all routes and middleware.
func (s *server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	if s.cfg.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware(s.cfg.RateLimit.RequestsPerMinute))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{tc}/runplans", s.handleCampaignPlans)
		r.Get("/duts", s.handleListDUTs)
		r.Get("/duts/{name}/runplans", s.handleDUTPlans)
	})

	r.Get("/site/*", s.handleSiteFile)
	r.Head("/site/*", s.handleSiteFile)

	return r
}

// corsMiddleware returns a CORS middleware configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	origins := s.cfg.CORSOrigins

	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
