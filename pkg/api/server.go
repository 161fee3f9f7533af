package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/blackroad/metricboard/pkg/dashboard"
	"github.com/blackroad/metricboard/pkg/query"
	"github.com/blackroad/metricboard/pkg/storage"
	"github.com/blackroad/metricboard/pkg/types"
)

// Server implements the HTTP API server
type Server struct {
	store      storage.Store
	engine     *query.Engine
	dashboards *dashboard.Registry
	logger     zerolog.Logger
	metrics    *serverMetrics
	addr       string
	server     *http.Server
}

// NewServer creates a new API server
func NewServer(addr string, store storage.Store, dashboards *dashboard.Registry, logger zerolog.Logger) *Server {
	return &Server{
		store:      store,
		engine:     query.NewEngine(store),
		dashboards: dashboards,
		logger:     logger,
		metrics:    newServerMetrics(),
		addr:       addr,
	}
}

// Handler returns the server's routing handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/write", s.handleWrite)
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/latest", s.handleLatest)
	mux.HandleFunc("/api/v1/dashboards", s.handleDashboards)
	mux.HandleFunc("/api/v1/dashboards/", s.handleDashboard)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return s.instrument(mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// writeRequest is the ingestion payload. Timestamp defaults to the
// current time when omitted.
type writeRequest struct {
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp *int64            `json:"timestamp,omitempty"`
}

// handleWrite handles point ingestion requests
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError("invalid request body: %v", err))
		return
	}

	ts := time.Now().Unix()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	p := types.Point{
		Metric:    req.Metric,
		Timestamp: ts,
		Value:     req.Value,
		Labels:    req.Labels,
	}
	if err := s.store.Write(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.pointsWritten.Inc()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleQuery handles range query requests
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	spec, err := specFromRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.Query(r.Context(), spec)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.queriesServed.Inc()
	s.writeJSON(w, http.StatusOK, result)
}

// handleLatest returns the most recent matching point
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	p, err := s.engine.Latest(r.Context(), metric, labelFilterFromRequest(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p == nil {
		s.writeError(w, types.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleDashboards handles the dashboard collection: list and import
func (s *Server) handleDashboards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.dashboards.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if list == nil {
			list = []dashboard.DashboardInfo{}
		}
		s.writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, types.NewValidationError("reading request body: %v", err))
			return
		}
		d, err := dashboard.UnmarshalGrafana(body)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.dashboards.Save(r.Context(), d); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"id": d.ID})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleDashboard handles a single dashboard: export and delete
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/dashboards/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		d, err := s.dashboards.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		doc, err := dashboard.MarshalGrafana(d)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)

	case http.MethodDelete:
		if err := s.dashboards.Delete(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// specFromRequest builds a query spec from URL parameters. Label
// filters are passed as label.<key>=<value> pairs.
func specFromRequest(r *http.Request) (types.QuerySpec, error) {
	q := r.URL.Query()

	metric := q.Get("metric")
	if metric == "" {
		return types.QuerySpec{}, types.NewValidationError("missing metric parameter")
	}

	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		return types.QuerySpec{}, types.NewValidationError("invalid from timestamp %q", q.Get("from"))
	}
	to, err := strconv.ParseInt(q.Get("to"), 10, 64)
	if err != nil {
		return types.QuerySpec{}, types.NewValidationError("invalid to timestamp %q", q.Get("to"))
	}

	return types.QuerySpec{
		Metric:      metric,
		Range:       types.TimeRange{From: from, To: to},
		LabelFilter: labelFilterFromRequest(r),
	}, nil
}

func labelFilterFromRequest(r *http.Request) map[string]string {
	filter := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if strings.HasPrefix(key, "label.") && len(vals) > 0 {
			filter[strings.TrimPrefix(key, "label.")] = vals[0]
		}
	}
	return filter
}

// writeJSON writes a JSON response with the given status
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encoding response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses:
// validation 400, not found 404, storage and everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrStorage):
		status = http.StatusInternalServerError
		s.metrics.storageErrors.Inc()
	}

	if status >= 500 {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
