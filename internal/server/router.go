package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrylevesque/qrpay/internal/metrics"
)

// NewRouter wires the endpoints. Metrics are recorded on reg and served from
// /metrics; a nil reg disables both.
func NewRouter(h *Handler, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	if reg != nil {
		r.Use(metrics.NewHTTP(reg).Middleware)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)

	pay := r.PathPrefix("/api/payment").Subrouter()
	pay.Use(h.RequireToken)
	pay.HandleFunc("/initiate", h.InitiatePayment).Methods(http.MethodPost)
	pay.HandleFunc("/execute", h.ExecutePayment).Methods(http.MethodPost)
	return r
}
