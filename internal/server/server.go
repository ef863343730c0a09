package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jacoelho/xmlhub"
	xherrors "github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/internal/bindings"
	"github.com/jacoelho/xmlhub/internal/config"
	"github.com/jacoelho/xmlhub/metrics"
)

// Handler serves document dispatch over HTTP. Every request gets its own
// registry and output buffer built from the configured bindings.
type Handler struct {
	logger   *slog.Logger
	loader   *bindings.Loader
	bindings []config.Binding
	hubOpts  []xmlhub.Option
	maxBody  int64
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// New creates a Handler. Metrics are registered with reg.
func New(cfg *config.Config, loader *bindings.Loader, logger *slog.Logger, reg *prometheus.Registry) (*Handler, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if loader == nil {
		loader = bindings.NewLoader("")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := loader.Preload(cfg.Bindings); err != nil {
		return nil, err
	}
	m := metrics.New(reg)
	opts := bindings.HubOptions(cfg.Parse)
	opts = append(opts, xmlhub.WithLogger(logger), xmlhub.WithObserver(m))
	return &Handler{
		logger:   logger,
		loader:   loader,
		bindings: cfg.Bindings,
		hubOpts:  opts,
		maxBody:  cfg.Server.MaxBodyBytes,
		metrics:  m,
		gatherer: reg,
	}, nil
}

// Register registers the routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Get("/healthz", h.handleHealth)
	r.Post("/v1/process", h.handleProcess)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// Router returns a chi router with every route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// NewHTTPServer builds an HTTP server with the configured timeouts.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout.Duration,
		WriteTimeout:      cfg.WriteTimeout.Duration,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, `{"status":"ok"}`)
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var out bytes.Buffer
	output := bindings.NewOutput(&out)
	reg, err := h.loader.Build(h.bindings, output)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build registry", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "handler bindings are invalid")
		return
	}
	hub, err := xmlhub.New(reg, h.hubOpts...)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build hub", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "hub configuration is invalid")
		return
	}

	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	report, err := hub.ProcessReport(ctx, body)
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}

	doc, err := encodeReport(report, output, out.String())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode response", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to encode response")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "body-too-large", fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		return
	}
	e, ok := xherrors.As(err)
	if !ok {
		h.logger.ErrorContext(r.Context(), "failed to process document", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to process document")
		return
	}
	switch e.Class() {
	case xherrors.ClassMalformedInput, xherrors.ClassHandler:
		writeError(w, http.StatusUnprocessableEntity, string(e.Code), e.Error())
	default:
		h.logger.ErrorContext(r.Context(), "failed to process document", "error", err)
		writeError(w, http.StatusInternalServerError, string(e.Code), e.Error())
	}
}

// encodeReport builds the response body. Output lines that are JSON
// documents are embedded as is; any other line becomes a string.
func encodeReport(report xmlhub.Report, output *bindings.Output, lines string) (string, error) {
	doc, err := sjson.Set("", "id", report.ID)
	if err != nil {
		return "", err
	}
	fields := []struct {
		path  string
		value int
	}{
		{"elements", report.Stats.Elements},
		{"texts", report.Stats.Texts},
		{"handlers", report.Stats.FramesPushed},
		{"max_depth", report.Stats.MaxDepth},
	}
	for _, f := range fields {
		if doc, err = sjson.Set(doc, f.path, f.value); err != nil {
			return "", err
		}
	}
	if counts := output.Tally.Counts(); len(counts) > 0 {
		if doc, err = sjson.Set(doc, "counts", counts); err != nil {
			return "", err
		}
	}
	if doc, err = sjson.SetRaw(doc, "output", "[]"); err != nil {
		return "", err
	}
	for line := range strings.Lines(lines) {
		line = strings.TrimSuffix(line, "\n")
		if gjson.Valid(line) && strings.HasPrefix(line, "{") {
			doc, err = sjson.SetRaw(doc, "output.-1", line)
		} else {
			doc, err = sjson.Set(doc, "output.-1", line)
		}
		if err != nil {
			return "", err
		}
	}
	return doc, nil
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body, err := sjson.Set(`{}`, "code", code)
	if err == nil {
		body, err = sjson.Set(body, "message", message)
	}
	if err != nil {
		body = `{"code":"internal"}`
	}
	writeJSON(w, status, body)
}
