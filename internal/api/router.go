package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the HTTP surface. Handlers are wired by the
// caller; this only maps routes.
func NewRouter(events *EventHandler, cameras *CameraHandler, ws *NotificationsWsHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Post("/sync", events.TriggerSync)
			r.Get("/", events.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", events.Get)
				r.Delete("/", events.Delete)
				r.Post("/played", events.MarkPlayed)
				r.Post("/tags", events.AttachTags)
				r.Delete("/tags/{name}", events.DetachTag)
			})
		})

		r.Route("/cameras", func(r chi.Router) {
			r.Post("/", cameras.Create)
			r.Get("/", cameras.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cameras.Get)
				r.Post("/enable", cameras.Enable)
				r.Post("/disable", cameras.Disable)
				r.Get("/events/active", cameras.ActiveEvents)
				r.Delete("/events/active", cameras.StopActiveEvents)
			})
		})

		r.Get("/ws/notifications", ws.ServeWS)
	})

	return r
}
