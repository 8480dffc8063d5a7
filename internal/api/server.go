package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"idsguard/internal/config"
	"idsguard/internal/engine"
	"idsguard/internal/failure"
	"idsguard/internal/storage"
)

const userHeader = "X-User-ID"

type Server struct {
	cfg     config.APIConfig
	driver  string
	engine  *engine.Engine
	store   storage.Store
	metrics http.Handler
	logger  *slog.Logger
	version string
}

// NewServer wires the handlers. metricsHandler may be nil, in which case
// /metrics is not served.
func NewServer(cfg *config.Config, eng *engine.Engine, store storage.Store, metricsHandler http.Handler, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:     cfg.API,
		driver:  cfg.Storage.Driver,
		engine:  eng,
		store:   store,
		metrics: metricsHandler,
		logger:  logger,
		version: version,
	}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/predict/file", s.handlePredictFile).Methods(http.MethodPost)
	r.HandleFunc("/predict/manual", s.handlePredictManual).Methods(http.MethodPost)

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	a.HandleFunc("/alerts/{id}", s.handleGetAlert).Methods(http.MethodGet)
	a.HandleFunc("/alerts/{id}/resolve", s.handleResolveAlert).Methods(http.MethodPost)
	a.HandleFunc("/stats/alerts", s.handleAlertStats).Methods(http.MethodGet)
	a.HandleFunc("/metrics", s.handleListMetrics).Methods(http.MethodGet)
	a.HandleFunc("/metrics/summary", s.handleMetricSummary).Methods(http.MethodGet)
	a.HandleFunc("/settings", s.handleListSettings).Methods(http.MethodGet)
	a.HandleFunc("/settings/{key}", s.handleGetSetting).Methods(http.MethodGet)
	a.HandleFunc("/settings/{key}", s.handlePutSetting).Methods(http.MethodPut)
	a.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Kind: string(failure.KindNotFound)})
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	// subrouters do not inherit these from r
	for _, router := range []*mux.Router{r, a} {
		router.NotFoundHandler = notFound
		router.MethodNotAllowedHandler = notAllowed
	}
	return r
}

// Start serves the API until ctx is done. It returns nil when the API is
// disabled.
func Start(ctx context.Context, s *Server) *http.Server {
	if !s.cfg.Enabled {
		if s.logger != nil {
			s.logger.Info("api disabled")
		}
		return nil
	}
	if s.logger != nil {
		s.logger.Info("api enabled", "addr", s.cfg.Addr)
	}
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := failure.KindOf(err)
	status := failure.HTTPStatus(kind)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

func badRequest(op, format string, args ...any) error {
	return failure.Newf(failure.KindContract, op, format, args...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func userID(r *http.Request) *string {
	if v := r.Header.Get(userHeader); v != "" {
		return &v
	}
	return nil
}
