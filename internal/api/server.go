package api

import (
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/query"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// StatusProvider reports the most recent processing cycle.
type StatusProvider interface {
	LastReport() (model.CycleReport, bool)
}

// Server is the collector's HTTP server for metrics, health and status.
type Server struct {
	http *http.Server
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	status  StatusProvider
	querier query.Querier // optional
}

// NewRouter builds the route table. querier may be nil, in which case the host
// endpoint is not served.
func NewRouter(status StatusProvider, querier query.Querier, gatherer prometheus.Gatherer) *mux.Router {
	h := &APIHandler{status: status, querier: querier}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/status", h.statusHandler).Methods(http.MethodGet)
	if querier != nil {
		r.HandleFunc("/api/v1/hosts/{addr}/hourly", h.hostHourlyHandler).Methods(http.MethodGet)
	}
	return r
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Printf("API server starting on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Could not listen on %s: %v", s.http.Addr, err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("API server shutting down...")
	return s.http.Shutdown(ctx)
}

func (h *APIHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusHandler returns the last cycle report, or 204 before the first cycle.
func (h *APIHandler) statusHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.status.LastReport()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// hostHourlyHandler returns the stored hours of one address on one date,
// given as ?date=YYYY-MM-DD.
func (h *APIHandler) hostHourlyHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := netip.ParseAddr(mux.Vars(r)["addr"])
	if err != nil || !addr.Is4() {
		http.Error(w, fmt.Sprintf("invalid IPv4 address %q", mux.Vars(r)["addr"]), http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid date: %v", err), http.StatusBadRequest)
		return
	}

	rows, err := h.querier.HostHourly(r.Context(), addr, model.DateOf(day))
	if errors.Is(err, query.ErrNoPartition) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query hours: %v", err), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []query.HourlyUsage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.String(),
		"date":    model.DateOf(day).String(),
		"hours":   rows,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}
