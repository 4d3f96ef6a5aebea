package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/z-relay/backend/internal/handler/relay"
	"github.com/zhouzirui/z-relay/backend/internal/metrics"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(registry *session.Registry, speechSvc relay.SpeechService, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *log.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logger.WithPrefix("http").StandardLog(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	relayHandler := relay.New(speechSvc, registry, m, logger)

	r.Route("/api", func(api chi.Router) {
		relayHandler.RegisterRoutes(api)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
