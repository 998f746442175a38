package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/metrics"
)

type (
	Response struct {
		Success bool          `json:"success"`
		Data    interface{}   `json:"data,omitempty"`
		Error   string        `json:"error,omitempty"`
		Kind    currency.Kind `json:"kind,omitempty"`
	}

	SchedulerStatus interface {
		Running() bool
	}

	Handler struct {
		Rates      currency.RateReader
		Updater    currency.Updater
		Conversion currency.Conversion
		Scheduler  SchedulerStatus
		Logger     *slog.Logger
	}

	statusRecorder struct {
		http.ResponseWriter
		status int
	}
)

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}

	return h.Logger
}

// NewRouter wires every endpoint of the rates API.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.observe)

	r.HandleFunc("/rates", h.listRates).Methods(http.MethodGet)
	r.HandleFunc("/rates/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/rates/{from}/{to}", h.getRate).Methods(http.MethodGet)
	r.HandleFunc("/convert", h.convert).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Error: "route not found"})
	})

	return r
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}

		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		h.logger().Debug("http request", "method", r.Method, "route", route, "status", recorder.status, "took", time.Since(started))
	})
}

// StatusCode maps an error kind to the HTTP status returned to clients.
func StatusCode(err error) int {
	switch currency.KindOf(err) {
	case currency.KindInvalidArgument, currency.KindNoProvider:
		return http.StatusBadRequest
	case currency.KindRateUnavailable:
		return http.StatusNotFound
	case currency.KindStaleData:
		return http.StatusServiceUnavailable
	case currency.KindAllProvidersFailed:
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)

	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, Response{Error: err.Error(), Kind: currency.KindOf(err)})
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}
