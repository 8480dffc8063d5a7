package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"idsguard/internal/engine"
	"idsguard/internal/ingest"
	"idsguard/internal/model"
	"idsguard/internal/normalize"
)

type statusResponse struct {
	Status  string       `json:"status"`
	Time    string       `json:"time"`
	Version string       `json:"version"`
	Model   string       `json:"model"`
	Storage string       `json:"storage"`
	API     apiStatus    `json:"api"`
	Engine  engine.Stats `json:"engine"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Version: s.version,
		Model:   s.engine.Context().Info().String(),
		Storage: s.driver,
		API:     apiStatus{Enabled: s.cfg.Enabled, Addr: s.cfg.Addr},
		Engine:  s.engine.Stats(),
	})
}

func (s *Server) handlePredictFile(w http.ResponseWriter, r *http.Request) {
	const op = "predict file"
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	body, err := uploadBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()
	rows, err := ingest.ReadCSV(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = badRequest(op, "upload exceeds %d bytes", tooLarge.Limit)
		}
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.ScoreBatch(r.Context(), rows, userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// uploadBody returns the CSV payload of a multipart upload (field "file")
// or the raw request body.
func uploadBody(r *http.Request) (io.ReadCloser, error) {
	const op = "predict file"
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest(op, "no file uploaded: %v", err)
	}
	if header.Filename == "" {
		file.Close()
		return nil, badRequest(op, "no file selected")
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		file.Close()
		return nil, badRequest(op, "only CSV files are supported, got %q", header.Filename)
	}
	return file, nil
}

func (s *Server) handlePredictManual(w http.ResponseWriter, r *http.Request) {
	const op = "predict manual"
	contract := s.engine.Context().Contract()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var rec normalize.Record
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, r, badRequest(op, "read body: %v", err))
			return
		}
		rec, err = ingest.RecordFromJSON(contract, data)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(s.cfg.MaxUploadBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			s.writeError(w, r, badRequest(op, "parse form: %v", err))
			return
		}
		rec = ingest.RecordFromForm(contract, r.PostForm)
	}
	res, err := s.engine.ScoreSingle(r.Context(), rec, userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	const op = "list alerts"
	q := r.URL.Query()
	limit, err := s.limit(op, q.Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := model.AlertFilter{Limit: limit}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, badRequest(op, "invalid offset %q", v))
			return
		}
		filter.Offset = n
	}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, badRequest(op, "invalid resolved %q", v))
			return
		}
		filter.Resolved = &b
	}
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	list, err := s.store.GetAlerts(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.store.GetAlertByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	const op = "resolve alert"
	var req struct {
		ResolvedBy *string `json:"resolved_by"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, r, badRequest(op, "decode body: %v", err))
			return
		}
	}
	if req.ResolvedBy == nil {
		req.ResolvedBy = userID(r)
	}
	alert, err := s.store.ResolveAlert(r.Context(), mux.Vars(r)["id"], req.ResolvedBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	rng, err := timeRange("alert stats", r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.store.GetAlertStats(r.Context(), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "list metrics"
	rng, err := timeRange(op, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := s.limit(op, r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.store.GetMetrics(r.Context(), model.MetricFilter{
		MetricType: r.URL.Query().Get("type"),
		Range:      rng,
		Limit:      limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": list,
		"count":   len(list),
	})
}

func (s *Server) handleMetricSummary(w http.ResponseWriter, r *http.Request) {
	const op = "metric summary"
	rng, err := timeRange(op, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	interval := model.Interval(strings.ToLower(q.Get("interval")))
	if interval == "" {
		interval = model.IntervalDay
	}
	summary, err := s.store.GetMetricSummary(r.Context(), q.Get("type"), interval, rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.GetAllSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": list})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.store.GetSetting(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	const op = "put setting"
	var req struct {
		Value       *string `json:"value"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, badRequest(op, "decode body: %v", err))
		return
	}
	if req.Value == nil {
		s.writeError(w, r, badRequest(op, "value is required"))
		return
	}
	key := mux.Vars(r)["key"]
	if err := s.store.SetSetting(r.Context(), key, *req.Value, req.Description); err != nil {
		s.writeError(w, r, err)
		return
	}
	setting, err := s.store.GetSetting(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Context().Info())
}

// limit parses a page size, applying the configured default and cap.
func (s *Server) limit(op, raw string) (int, error) {
	if raw == "" {
		return s.cfg.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest(op, "invalid limit %q", raw)
	}
	if s.cfg.MaxLimit > 0 && n > s.cfg.MaxLimit {
		n = s.cfg.MaxLimit
	}
	return n, nil
}

func timeRange(op string, r *http.Request) (model.TimeRange, error) {
	var rng model.TimeRange
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &rng.Start}, {"end", &rng.End}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		ts, err := normalize.ParseTimestamp(v, time.UTC)
		if err != nil {
			return rng, badRequest(op, "invalid %s %q", p.name, v)
		}
		*p.dst = ts
	}
	if !rng.Start.IsZero() && !rng.End.IsZero() && rng.End.Before(rng.Start) {
		return rng, badRequest(op, "end is before start")
	}
	return rng, nil
}
