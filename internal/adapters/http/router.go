package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
)

const defaultMaxBodyBytes = 32 << 20

// SessionService is the session surface the router needs on top of the
// core port: flow listing and the export content type.
type SessionService interface {
	ports.SessionService
	Flows() []string
	ExportContentType() string
}

// MetricsRecorder instruments the handler chain and exposes /metrics.
type MetricsRecorder interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordRejected(reason string)
}

type Options struct {
	// Source backs corpus builds requested with from_source.
	Source ports.CorpusSource
	// APIKey enables bearer authentication on /v1 routes when set.
	APIKey string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	InFlightWait   time.Duration
	MaxBodyBytes   int64

	Metrics MetricsRecorder
	Logger  *slog.Logger
}

type Router struct {
	corpus   ports.CorpusService
	queries  ports.QueryService
	sessions SessionService
	opts     Options
	logger   *slog.Logger
}

func NewRouter(corpus ports.CorpusService, queries ports.QueryService, sessions SessionService, opts Options) *Router {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		corpus:   corpus,
		queries:  queries,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/corpus", rt.corpusStatus)
	api.HandleFunc("POST /v1/corpus", rt.buildCorpus)
	api.HandleFunc("POST /v1/query", rt.query)
	api.HandleFunc("GET /v1/flows", rt.listFlows)
	api.HandleFunc("POST /v1/sessions", rt.startSession)
	api.HandleFunc("GET /v1/sessions/{id}", rt.getSession)
	api.HandleFunc("DELETE /v1/sessions/{id}", rt.abortSession)
	api.HandleFunc("POST /v1/sessions/{id}/step", rt.stepSession)
	api.HandleFunc("POST /v1/sessions/{id}/run", rt.runSession)
	api.HandleFunc("POST /v1/sessions/{id}/followups", rt.followUp)
	api.HandleFunc("GET /v1/sessions/{id}/export", rt.exportSession)

	var guarded http.Handler = api
	guarded = authMiddleware(guarded, rt.opts.APIKey)
	guarded = backpressureMiddleware(guarded, rt.opts.MaxInFlight, rt.opts.InFlightWait, rt.reject)
	guarded = rateLimitMiddleware(guarded, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.reject)
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) reject(reason string) {
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordRejected(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	status := rt.corpus.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"corpus_ready": status.Ready,
		"building":     status.Building,
	})
}

func (rt *Router) corpusStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.corpus.Status())
}

type buildCorpusRequest struct {
	domain.CorpusRequest
	FromSource bool `json:"from_source"`
}

func (rt *Router) buildCorpus(w http.ResponseWriter, r *http.Request) {
	var req buildCorpusRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	if req.FromSource {
		if rt.opts.Source == nil {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "build corpus", errors.New("no corpus source is configured")))
			return
		}
		if len(req.Documents) > 0 {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "build corpus", errors.New("documents and from_source are mutually exclusive")))
			return
		}
		docs, err := rt.opts.Source.Load(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		req.Documents = docs
	}

	status, err := rt.corpus.Build(r.Context(), req.CorpusRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	result, err := rt.queries.Answer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"flows": rt.sessions.Flows()})
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flow string `json:"flow"`
	}
	if r.ContentLength != 0 {
		if !rt.decodeJSON(w, r, &req) {
			return
		}
	}
	state, err := rt.sessions.Start(r.Context(), req.Flow)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+state.ID)
	writeJSON(w, http.StatusCreated, state)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	state, err := rt.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) stepSession(w http.ResponseWriter, r *http.Request) {
	result, err := rt.sessions.Step(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) runSession(w http.ResponseWriter, r *http.Request) {
	state, err := rt.sessions.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) followUp(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	result, err := rt.sessions.FollowUp(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) abortSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Abort(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) exportSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := rt.sessions.Export(r.Context(), id, &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", rt.sessions.ExportContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		rt.logger.Warn("session_export_write_failed", "session_id", id, "error", err)
	}
}

func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, rt.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is required"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + strings.TrimPrefix(err.Error(), "json: ")})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
