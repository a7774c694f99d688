package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/quill/internal/catalog"
	"github.com/efebarandurmaz/quill/internal/chain"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/observability"
	"github.com/efebarandurmaz/quill/internal/output"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

const maxBodyBytes = 1 << 20

// Options wires the API server.
type Options struct {
	Catalog  *catalog.Catalog
	Provider llm.Provider // may be nil; render still works
	// ProviderFor, when set, picks the provider per template and takes
	// precedence over Provider.
	ProviderFor    func(template string) (llm.Provider, error)
	RequestOptions *llm.RequestOptions
	Logger         zerolog.Logger
	Health         *Health
	// Metrics is served at /metrics. New creates one when nil.
	Metrics *observability.Metrics
}

// Server serves the template catalog.
type Server struct {
	catalog     *catalog.Catalog
	provider    llm.Provider
	providerFor func(string) (llm.Provider, error)
	reqOpts     *llm.RequestOptions
	logger      zerolog.Logger
	health      *Health
	metrics     *observability.Metrics
}

// New returns a Server. A nil Health gets a fresh one with the catalog and
// provider checks registered.
func New(opts Options) *Server {
	h := opts.Health
	if h == nil {
		h = NewHealth("")
		h.RegisterCheck("catalog", CatalogChecker(opts.Catalog))
		h.RegisterCheck("llm", ProviderChecker(opts.Provider))
	}
	m := opts.Metrics
	if m == nil {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			opts.Logger.Warn().Err(err).Msg("metrics disabled")
		}
	}
	return &Server{
		catalog:     opts.Catalog,
		provider:    opts.Provider,
		providerFor: opts.ProviderFor,
		reqOpts:     opts.RequestOptions,
		logger:      opts.Logger,
		health:      h,
		metrics:     m,
	}
}

// Health returns the probe state so callers can flip readiness.
func (s *Server) Health() *Health { return s.health }

// Metrics returns the registry served at /metrics.
func (s *Server) Metrics() *observability.Metrics { return s.metrics }

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Mount(mux)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /v1/templates", s.handleList)
	mux.HandleFunc("GET /v1/templates/{name}", s.handleDescribe)
	mux.HandleFunc("POST /v1/templates/{name}/render", s.handleRender)
	mux.HandleFunc("POST /v1/templates/{name}/invoke", s.handleInvoke)
	mux.HandleFunc("POST /v1/templates/{name}/stream", s.handleStream)
	return s.logRequests(mux)
}

// HTTPServer returns an http.Server for addr. No write timeout is set so
// streams can run as long as the model does.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// TemplateInfo describes a catalog entry.
type TemplateInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Parser         string   `json:"parser,omitempty"`
	Source         string   `json:"source,omitempty"`
	InputVariables []string `json:"input_variables"`
	Slots          []string `json:"slots,omitempty"`
}

// RunRequest is the body for render, invoke and stream.
type RunRequest struct {
	Bindings prompt.Bindings          `json:"bindings"`
	Messages map[string][]llm.Message `json:"messages,omitempty"`
}

// RenderResponse is returned by the render endpoint.
type RenderResponse struct {
	Template string        `json:"template"`
	Messages []llm.Message `json:"messages"`
}

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// InvokeResponse is returned by the invoke endpoint.
type InvokeResponse struct {
	Template   string `json:"template"`
	Content    string `json:"content"`
	Output     any    `json:"output,omitempty"`
	Model      string `json:"model,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Variable string `json:"variable,omitempty"`
}

func info(e *catalog.Entry) TemplateInfo {
	return TemplateInfo{
		Name:           e.Name,
		Description:    e.Description,
		Parser:         e.Parser,
		Source:         e.Source,
		InputVariables: e.Template.InputVariables(),
		Slots:          e.Template.Slots(),
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	entries := s.catalog.List()
	out := make([]TemplateInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, info(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	e, err := s.catalog.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info(e))
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	c, req, ok := s.prepare(w, r, opRender)
	if !ok {
		return
	}
	v, err := c.Render(r.Context(), req.Bindings, renderOptions(req)...)
	if err != nil {
		s.fail(w, r, opRender, err)
		return
	}
	s.record(r, opRender, nil)
	writeJSON(w, http.StatusOK, RenderResponse{Template: c.Name(), Messages: v.ToMessages()})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	c, req, ok := s.prepare(w, r, opInvoke)
	if !ok {
		return
	}
	res, err := c.Invoke(r.Context(), req.Bindings, renderOptions(req)...)
	if err != nil {
		s.fail(w, r, opInvoke, err)
		return
	}
	s.record(r, opInvoke, nil)
	writeJSON(w, http.StatusOK, InvokeResponse{
		Template:   c.Name(),
		Content:    res.Response.Content,
		Output:     res.Output,
		Model:      res.Response.Model,
		StopReason: res.Response.StopReason,
		Usage:      Usage{InputTokens: res.Response.InputTokens, OutputTokens: res.Response.OutputTokens},
	})
}

// handleStream writes one SSE "data" event per chunk, a final "done" event
// carrying usage, or an "error" event if the stream fails midway.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}
	c, req, ok := s.prepare(w, r, opStream)
	if !ok {
		return
	}
	ch, err := c.Stream(r.Context(), req.Bindings, renderOptions(req)...)
	if err != nil {
		s.fail(w, r, opStream, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sent := 0
	defer func() { s.metrics.RecordStreamChunks(r.Context(), c.Name(), sent) }()
	for chunk := range ch {
		switch {
		case chunk.Err != nil:
			s.logger.Warn().Err(chunk.Err).Str("template", c.Name()).Msg("stream failed")
			s.metrics.RecordRequest(r.Context(), c.Name(), opStream, outcomeStreamError)
			writeEvent(w, "error", ErrorResponse{Error: chunk.Err.Error()})
			flusher.Flush()
			return
		case chunk.Done:
			s.record(r, opStream, nil)
			writeEvent(w, "done", chunk)
			flusher.Flush()
			return
		case chunk.Content != "":
			sent++
			writeEvent(w, "", map[string]string{"content": chunk.Content})
			flusher.Flush()
		}
	}
	// Closed without a terminal chunk: the client went away.
	s.metrics.RecordRequest(r.Context(), c.Name(), opStream, outcomeCanceled)
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func (s *Server) prepare(w http.ResponseWriter, r *http.Request, op string) (*chain.Chain, *RunRequest, bool) {
	e, err := s.catalog.Get(r.PathValue("name"))
	if err != nil {
		s.fail(w, r, op, err)
		return nil, nil, false
	}

	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordRequest(r.Context(), e.Name, op, outcomeBadRequest)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return nil, nil, false
	}

	parser, err := output.ByName(e.Parser)
	if err != nil {
		s.fail(w, r, op, err)
		return nil, nil, false
	}
	provider := s.provider
	if s.providerFor != nil {
		if provider, err = s.providerFor(e.Name); err != nil {
			s.fail(w, r, op, err)
			return nil, nil, false
		}
	}
	c := chain.New(e.Template, provider,
		chain.WithName(e.Name),
		chain.WithParser(parser),
		chain.WithRequestOptions(s.reqOpts),
		chain.WithLogger(s.logger),
	)
	return c, &req, true
}

func renderOptions(req *RunRequest) []prompt.RenderOption {
	opts := make([]prompt.RenderOption, 0, len(req.Messages))
	for slot, msgs := range req.Messages {
		opts = append(opts, prompt.WithMessages(slot, msgs))
	}
	return opts
}

// Operations and outcomes recorded per request.
const (
	opRender = "render"
	opInvoke = "invoke"
	opStream = "stream"

	outcomeOK              = "ok"
	outcomeBadRequest      = "bad_request"
	outcomeMissingVariable = "missing_variable"
	outcomeConfiguration   = "configuration_error"
	outcomeNotFound        = "not_found"
	outcomeNoProvider      = "no_provider"
	outcomeUpstream        = "upstream_error"
	outcomeStreamError     = "stream_error"
	outcomeCanceled        = "canceled"
)

// OutcomeFor classifies err for the request counter.
func OutcomeFor(err error) string {
	var missing *prompt.MissingVariableError
	var cfgErr *prompt.ConfigurationError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &missing):
		return outcomeMissingVariable
	case errors.As(err, &cfgErr):
		return outcomeConfiguration
	case errors.Is(err, catalog.ErrTemplateNotFound):
		return outcomeNotFound
	case errors.Is(err, chain.ErrNoProvider):
		return outcomeNoProvider
	default:
		return outcomeUpstream
	}
}

func (s *Server) record(r *http.Request, op string, err error) {
	s.metrics.RecordRequest(r.Context(), r.PathValue("name"), op, OutcomeFor(err))
}

// fail records err against the request and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.record(r, op, err)
	s.writeError(w, err)
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var missing *prompt.MissingVariableError
	var cfgErr *prompt.ConfigurationError
	switch {
	case errors.As(err, &missing), errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrNoProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := ErrorResponse{Error: err.Error()}
	var missing *prompt.MissingVariableError
	if errors.As(err, &missing) {
		body.Variable = missing.Name
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
