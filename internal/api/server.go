// Package api serves solves, diagrams and the run history over HTTP.
//
// Networks are posted as JSON or YAML documents, the same format the CLI
// reads from files. Query parameters override the server's flow settings.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/pipeflow/pkg/cache"
	"github.com/matzehuels/pipeflow/pkg/config"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/netio"
	"github.com/matzehuels/pipeflow/pkg/pipeline"
	"github.com/matzehuels/pipeflow/pkg/store"
)

// DefaultMaxBody limits the size of a posted network.
const DefaultMaxBody = 4 << 20

// Server handles API requests.
type Server struct {
	Runner *pipeline.Runner
	Config *config.Config
	Store  *store.Store // nil disables the history endpoints and recording
	Logger *log.Logger

	MaxBody int64
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Post("/render", s.handleRender)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger().Info("HTTP API starting", "addr", addr, "history", s.Store != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger().Info("HTTP API stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// solveResponse is the body of a solve reply.
type solveResponse struct {
	Result  *pipeline.Result `json:"result"`
	Cached  bool             `json:"cached"`
	Network *netio.Document  `json:"network"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	tree, res, err := s.solve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := netio.FromTree(tree)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, solveResponse{Result: res, Cached: res.CacheHit, Network: doc})
}

// solve decodes the posted network, applies query overrides and solves it.
func (s *Server) solve(r *http.Request) (*fitting.Tree, *pipeline.Result, error) {
	tree, data, err := s.readNetwork(r)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.requestConfig(r)
	if err != nil {
		return nil, nil, err
	}
	q := r.URL.Query()
	maxIter, err := intParam(q.Get("max_iter"), 0)
	if err != nil {
		return nil, nil, err
	}

	hash := cache.Hash(data)
	res, err := s.Runner.Solve(r.Context(), tree, pipeline.Options{
		Config:        cfg,
		MaxIterations: maxIter,
		NetworkHash:   hash,
		Refresh:       q.Get("refresh") == "true",
		Logger:        s.logger(),
	})
	if err != nil {
		return nil, nil, err
	}

	if s.Store != nil {
		name := q.Get("name")
		if name == "" {
			name = "api:" + hash[:12]
		}
		if err := s.Store.RecordResult(r.Context(), name, hash, res); err != nil {
			s.logger().Warn("run not recorded", "run", res.RunID, "error", err)
		}
	}
	return tree, res, nil
}

// contentTypes maps diagram formats to response content types.
var contentTypes = map[string]string{
	pipeline.FormatSVG: "image/svg+xml",
	pipeline.FormatPNG: "image/png",
	pipeline.FormatPDF: "application/pdf",
	pipeline.FormatDOT: "text/vnd.graphviz",
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = pipeline.FormatSVG
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		writeError(w, err)
		return
	}
	scale, err := floatParam(q.Get("scale"), 2)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := pipeline.RenderOptions{Format: format, Scale: scale}
	var tree *fitting.Tree
	if q.Get("solve") == "true" {
		var res *pipeline.Result
		tree, res, err = s.solve(r)
		if err != nil {
			writeError(w, err)
			return
		}
		opts.Detailed = true
		opts.Highlight = problemComponents(res.Errors)
	} else {
		tree, _, err = s.readNetwork(r)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	data, hit, err := s.Runner.RenderWithCacheInfo(r.Context(), tree, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("X-Cache", cacheHeader(hit))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// runJSON is the API form of a recorded run.
type runJSON struct {
	ID              string         `json:"id"`
	Network         string         `json:"network"`
	NetworkHash     string         `json:"network_hash"`
	CreatedAt       time.Time      `json:"created_at"`
	Iterations      int            `json:"iterations"`
	Converged       bool           `json:"converged"`
	ErrorCount      int            `json:"error_count"`
	TrunkFlow       float64        `json:"trunk_flow"`
	TrunkPressure   *float64       `json:"trunk_pressure,omitempty"`
	MinLeafPressure *float64       `json:"min_leaf_pressure,omitempty"`
	DurationMS      float64        `json:"duration_ms"`
	Errors          []runErrorJSON `json:"errors,omitempty"`
	Leaves          []leafFlowJSON `json:"leaves,omitempty"`
}

type runErrorJSON struct {
	Code      string `json:"code"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

type leafFlowJSON struct {
	Leaf string  `json:"leaf"`
	Flow float64 `json:"flow"`
}

func toRunJSON(run store.Run) runJSON {
	return runJSON{
		ID:              run.ID,
		Network:         run.Network,
		NetworkHash:     run.NetworkHash,
		CreatedAt:       run.CreatedAt,
		Iterations:      run.Iterations,
		Converged:       run.Converged,
		ErrorCount:      run.ErrorCount,
		TrunkFlow:       run.TrunkFlow,
		TrunkPressure:   run.TrunkPressure,
		MinLeafPressure: run.MinLeafPressure,
		DurationMS:      float64(run.Duration) / float64(time.Millisecond),
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "run history is disabled"))
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), store.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := s.Store.List(r.Context(), q.Get("network"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunJSON(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "run history is disabled"))
		return
	}
	ctx := r.Context()
	run, err := s.Store.Find(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	errs, err := s.Store.Errors(ctx, run.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	leaves, err := s.Store.LeafFlows(ctx, run.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := toRunJSON(*run)
	for _, e := range errs {
		out.Errors = append(out.Errors, runErrorJSON{Code: e.Code, Component: e.Component, Message: e.Message})
	}
	for _, l := range leaves {
		out.Leaves = append(out.Leaves, leafFlowJSON{Leaf: l.Leaf, Flow: l.Flow})
	}
	writeJSON(w, http.StatusOK, out)
}

// readNetwork decodes the request body as a network document. The format
// follows the Content-Type header and defaults to JSON.
func (s *Server) readNetwork(r *http.Request) (*fitting.Tree, []byte, error) {
	limit := s.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read body")
	}
	if int64(len(data)) > limit {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "network exceeds %d bytes", limit)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "request body is empty")
	}

	format, err := bodyFormat(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, err
	}
	tree, err := netio.Read(bytes.NewReader(data), format)
	if err != nil {
		return nil, nil, err
	}
	return tree, data, nil
}

func bodyFormat(contentType string) (netio.Format, error) {
	if contentType == "" {
		return netio.FormatJSON, nil
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidFormat, err, "content type")
	}
	switch mt {
	case "application/json":
		return netio.FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return netio.FormatYAML, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidFormat, "unsupported content type %q (want JSON or YAML)", mt)
	}
}

// requestConfig copies the server configuration and applies the mode and
// area query parameters.
func (s *Server) requestConfig(r *http.Request) (*config.Config, error) {
	base := s.Config
	if base == nil {
		base = config.Default()
	}
	cfg := *base
	q := r.URL.Query()
	area, err := config.ParseArea(q.Get("area"))
	if err != nil {
		return nil, err
	}
	cfg.OverrideFlow(q.Get("mode"), area)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func problemComponents(errs []fitting.FittingError) map[string]bool {
	if len(errs) == 0 {
		return nil
	}
	ids := make(map[string]bool, len(errs))
	for _, fe := range errs {
		if fe.ComponentID != "" {
			ids[fe.ComponentID] = true
		}
	}
	return ids
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid integer parameter %q", v)
	}
	return n, nil
}

func floatParam(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid number parameter %q", v)
	}
	return f, nil
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// httpStatus maps an error to a response status.
func httpStatus(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInput:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindNetwork:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	status := httpStatus(err)
	msg := err.Error()
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": string(code), "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(w, `{"error":{"code":"INTERNAL_ERROR","message":%q}}`, err.Error())
	}
}
