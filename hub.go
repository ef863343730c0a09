package xmlhub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xherrors "github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/internal/dispatch"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

const tracerName = "github.com/jacoelho/xmlhub"

// Hub routes the elements of XML documents to handlers created from a
// registry. Each element whose name is registered gets a fresh handler that
// owns the element's scope: it sees its own start tag, the start tags and
// text of unregistered descendants, and exactly one end call for its own
// closing tag.
//
// A Hub is safe for concurrent use; every Process call has its own dispatch
// stack and they share only the registry.
type Hub struct {
	registry   *Registry
	logger     *slog.Logger
	tracer     trace.Tracer
	observer   Observer
	readerOpts []xmlevent.Options
}

// New returns a hub bound to registry.
func New(registry *Registry, opts ...Option) (*Hub, error) {
	if registry == nil {
		return nil, xherrors.New(xherrors.ErrNilRegistry, "handler registry is required")
	}
	cfg := applyOptions(opts)
	limits, err := resolveXMLParseLimits(cfg.maxDepth.resolved(), cfg.maxAttrs.resolved(), cfg.maxTokenSize.resolved())
	if err != nil {
		return nil, fmt.Errorf("new hub: %w", err)
	}

	readerOpts := limits.options()
	readerOpts = append(readerOpts, xmlevent.KeepWhitespace(cfg.keepWhitespace))
	if cfg.entities != nil {
		readerOpts = append(readerOpts, xmlevent.WithEntityMap(cfg.entities))
	}
	if cfg.charsetReader != nil {
		readerOpts = append(readerOpts, xmlevent.WithCharsetReader(cfg.charsetReader))
	}

	h := &Hub{
		registry:   registry,
		logger:     cfg.logger,
		tracer:     cfg.tracer,
		observer:   cfg.observer,
		readerOpts: readerOpts,
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer(tracerName)
	}
	return h, nil
}

// Registry returns the registry the hub resolves handlers from.
func (h *Hub) Registry() *Registry {
	if h == nil {
		return nil
	}
	return h.registry
}

// Process dispatches one document read from r.
func (h *Hub) Process(ctx context.Context, r io.Reader) error {
	_, err := h.ProcessReport(ctx, r)
	return err
}

// ProcessReport dispatches one document read from r and describes the run.
func (h *Hub) ProcessReport(ctx context.Context, r io.Reader) (Report, error) {
	return h.processReader(ctx, "", r)
}

// ProcessFile dispatches the document stored at path.
func (h *Hub) ProcessFile(ctx context.Context, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open xml file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close xml file %s: %w", path, closeErr)
		}
	}()

	_, err = h.processReader(ctx, path, f)
	return err
}

// ProcessSource dispatches events from an existing source.
func (h *Hub) ProcessSource(ctx context.Context, src xmlevent.Source) error {
	if err := h.check(); err != nil {
		return err
	}
	if src == nil {
		return xherrors.New(xherrors.ErrNilSource, "event source is required")
	}
	_, err := h.run(ctx, "", src)
	return err
}

func (h *Hub) processReader(ctx context.Context, name string, r io.Reader) (Report, error) {
	if err := h.check(); err != nil {
		return Report{Source: name, Err: err}, err
	}
	if r == nil {
		err := xherrors.New(xherrors.ErrNilSource, "nil reader")
		return Report{Source: name, Err: err}, err
	}
	src, err := xmlevent.NewReader(r, h.readerOpts...)
	if err != nil {
		return Report{Source: name, Err: err}, fmt.Errorf("open event source: %w", err)
	}
	return h.run(ctx, name, src)
}

func (h *Hub) check() error {
	if h == nil || h.registry == nil {
		return xherrors.New(xherrors.ErrNilRegistry, "hub has no registry")
	}
	return nil
}

func (h *Hub) run(ctx context.Context, name string, src xmlevent.Source) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := Report{ID: uuid.NewString(), Source: name}
	started := time.Now()

	ctx, span := h.tracer.Start(ctx, "xmlhub.Process", trace.WithAttributes(
		attribute.String("xmlhub.doc_id", report.ID),
		attribute.String("xmlhub.source", name),
	))
	defer span.End()

	resolver, release := h.registry.acquire()
	d := dispatch.New(resolver, NullHandler{})
	err := dispatchEvents(ctx, d, src)
	if err != nil {
		if closeErr := d.Abort(); closeErr != nil {
			h.logger.LogAttrs(ctx, slog.LevelWarn, "release handlers",
				slog.String("doc_id", report.ID), slog.Any("error", closeErr))
		}
	}
	release()

	report.Stats = statsFrom(d.Stats())
	report.Duration = time.Since(started)
	report.Err = err

	span.SetAttributes(
		attribute.Int("xmlhub.elements", report.Stats.Elements),
		attribute.Int("xmlhub.handlers", report.Stats.FramesPushed),
		attribute.Int("xmlhub.max_depth", report.Stats.MaxDepth),
	)
	h.log(ctx, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if h.observer != nil {
		h.observer.DocumentProcessed(report)
	}
	return report, err
}

func (h *Hub) log(ctx context.Context, report Report) {
	attrs := []slog.Attr{
		slog.String("doc_id", report.ID),
		slog.Int("elements", report.Stats.Elements),
		slog.Int("texts", report.Stats.Texts),
		slog.Int("handlers", report.Stats.FramesPushed),
		slog.Int("max_depth", report.Stats.MaxDepth),
		slog.Duration("duration", report.Duration),
	}
	if report.Source != "" {
		attrs = append(attrs, slog.String("source", report.Source))
	}
	if report.Err == nil {
		h.logger.LogAttrs(ctx, slog.LevelDebug, "document processed", attrs...)
		return
	}
	if e, ok := xherrors.As(report.Err); ok {
		attrs = append(attrs, slog.String("code", string(e.Code)), slog.String("class", e.Class().String()))
	}
	attrs = append(attrs, slog.Any("error", report.Err))
	h.logger.LogAttrs(ctx, slog.LevelWarn, "document failed", attrs...)
}

func dispatchEvents(ctx context.Context, d *dispatch.Dispatcher, src xmlevent.Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return d.Finish()
		}
		if err != nil {
			return err
		}

		switch ev.Kind {
		case xmlevent.EventStartElement:
			err = d.Start(ev.Name, ev.Attrs, ev.SelfClosing)
		case xmlevent.EventEndElement:
			err = d.End(ev.Name)
		case xmlevent.EventText:
			err = d.Text(ev.Text)
		}
		if err != nil {
			return withPosition(err, ev.Line, ev.Column)
		}
	}
}

func withPosition(err error, line, column int) error {
	if e, ok := xherrors.As(err); ok && !e.HasPosition() && line > 0 {
		e.Line = line
		e.Column = column
	}
	return err
}
