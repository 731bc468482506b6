package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"popup-engine/internal/observability"
)

func Router(h *VisitHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/visits", h.StartVisit)
		r.Route("/visits/{visitID}", func(r chi.Router) {
			r.Post("/events", h.Event)
			r.Get("/commands", h.Commands)
			r.Post("/intents", h.Intent)
			r.Delete("/", h.EndVisit)
		})
		r.Delete("/sessions/{sessionID}", h.EndSession)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
