package exporter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Dicklesworthstone/procmon/internal/model"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router exposes /metrics, /history and /healthz.
type Router struct {
	router       *mux.Router
	src          Source
	logger       *slog.Logger
	requestTotal *prometheus.CounterVec
}

// NewRouter registers the history collector and request counter on reg and
// wires the handlers.
func NewRouter(src Source, reg *prometheus.Registry, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		router: mux.NewRouter(),
		src:    src,
		logger: logger,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"route", "status"}),
	}
	for _, c := range []prometheus.Collector{NewCollector(src), r.requestTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	r.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.router.HandleFunc("/healthz", r.instrument("/healthz", r.handleHealth)).Methods(http.MethodGet)
	r.router.HandleFunc("/history", r.instrument("/history", r.handleHistory)).Methods(http.MethodGet)
	r.router.HandleFunc("/history/{scope}", r.instrument("/history/{scope}", r.handleHistory)).Methods(http.MethodGet)
	return r, nil
}

// ServeHTTP satisfies http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, req)
		r.requestTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		r.logger.Debug("http request", "route", route, "status", rec.status, "elapsed", time.Since(start))
	}
}

type historyResponse struct {
	Platform  string         `json:"platform"`
	Cores     int            `json:"cores"`
	ClockHz   uint64         `json:"clock_hz"`
	StartedAt time.Time      `json:"started_at"`
	Samples   []model.Sample `json:"samples"`
}

func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	samples := r.src.History()
	if name, ok := mux.Vars(req)["scope"]; ok {
		scope, err := model.ParseScope(name)
		if err != nil {
			r.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := samples[:0]
		for _, s := range samples {
			if s.Scope == scope {
				filtered = append(filtered, s)
			}
		}
		samples = filtered
	}
	r.writeJSON(w, http.StatusOK, historyResponse{
		Platform:  r.src.Platform().String(),
		Cores:     r.src.CoreCount(),
		ClockHz:   r.src.ClockHz(),
		StartedAt: r.src.StartedAt(),
		Samples:   samples,
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"platform":  r.src.Platform().String(),
		"uptime_ms": time.Since(r.src.StartedAt()).Milliseconds(),
	})
}

func (r *Router) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		r.logger.Warn("encode response", "error", err)
	}
}

func (r *Router) writeError(w http.ResponseWriter, status int, msg string) {
	r.writeJSON(w, status, map[string]string{"error": msg})
}
