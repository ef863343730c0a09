package xmlhub

import (
	"io"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Hub.
type Option interface{ apply(*hubOptions) }

type hubOptions struct {
	logger         *slog.Logger
	tracer         trace.Tracer
	observer       Observer
	charsetReader  func(label string, r io.Reader) (io.Reader, error)
	entities       map[string]string
	maxDepth       intOption
	maxAttrs       intOption
	maxTokenSize   intOption
	keepWhitespace bool
}

type optionFunc func(*hubOptions)

func (f optionFunc) apply(cfg *hubOptions) {
	if cfg == nil {
		return
	}
	f(cfg)
}

type intOption struct {
	value int
	set   bool
}

func (o intOption) resolved() int {
	if !o.set {
		return 0
	}
	return o.value
}

// WithLogger sets the structured logger. The default discards records.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.logger = l
	})
}

// WithTracer sets the tracer used for one span per document.
// The default is the global otel tracer provider.
func WithTracer(t trace.Tracer) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.tracer = t
	})
}

// WithObserver registers an observer notified after every document.
func WithObserver(o Observer) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.observer = o
	})
}

// WithKeepWhitespace controls whether whitespace-only text reaches handlers.
func WithKeepWhitespace(keep bool) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.keepWhitespace = keep
	})
}

// WithMaxDepth sets the element nesting limit (0 uses default).
func WithMaxDepth(value int) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.maxDepth = intOption{value: value, set: true}
	})
}

// WithMaxAttrs sets the per-element attribute limit (0 uses default).
func WithMaxAttrs(value int) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.maxAttrs = intOption{value: value, set: true}
	})
}

// WithMaxTokenSize sets the per-token size limit in bytes, markup included (0 uses default).
func WithMaxTokenSize(value int) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.maxTokenSize = intOption{value: value, set: true}
	})
}

// WithEntities supplies replacements for custom named entities.
func WithEntities(entities map[string]string) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.entities = maps.Clone(entities)
	})
}

// WithCharsetReader registers a decoder for non-UTF-8 documents.
func WithCharsetReader(fn func(label string, r io.Reader) (io.Reader, error)) Option {
	return optionFunc(func(cfg *hubOptions) {
		cfg.charsetReader = fn
	})
}

func applyOptions(opts []Option) hubOptions {
	var cfg hubOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&cfg)
	}
	return cfg
}
