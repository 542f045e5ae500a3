package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk engine routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Route("/portfolio/{id}", func(r chi.Router) {
			r.Get("/metrics", h.withPortfolio(h.HandleGetMetrics))
			r.Get("/metrics/history", h.withPortfolio(h.HandleGetMetricsHistory))
			r.Get("/positions", h.withPortfolio(h.HandleGetPositionRisks))
			r.Post("/stress", h.withPortfolio(h.HandleStressTest))
			r.Post("/simulate", h.withPortfolio(h.HandleSimulate))
			r.Get("/liquidity", h.withPortfolio(h.HandleGetLiquidity))
			r.Post("/report", h.withPortfolio(h.HandleReport))

			r.Route("/limits", func(r chi.Router) {
				r.Get("/", h.withPortfolio(h.HandleGetLimits))
				r.Put("/", h.withPortfolio(h.HandlePutLimits))
				r.Get("/check", h.withPortfolio(h.HandleCheckLimits))
			})
		})

		r.Post("/compare", h.HandleCompare)
	})
}

// withPortfolio extracts the portfolio id path parameter.
func (h *Handler) withPortfolio(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r, chi.URLParam(r, "id"))
	}
}
