package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/http/balance"
	"cashflow-service/internal/http/entry"
	"cashflow-service/internal/http/render"
)

// HealthCheck reports nil while a dependency is usable.
type HealthCheck func() error

func New(
	entriesV1 *entry.Handler,
	balancesV1 *balance.Handler,
	health HealthCheck,
	log *logrus.Logger,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := health(); err != nil {
			render.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()}, log)
			return
		}

		render.JSON(w, http.StatusOK, map[string]string{"status": "healthy"}, log)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/entries", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			entriesV1.Routes(r)
		})

		r.Route("/balances", balancesV1.Routes)
	})

	return router
}
