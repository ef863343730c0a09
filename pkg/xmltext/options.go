package xmltext

import (
	"io"
	"maps"
)

// Options holds decoder configuration values.
// The zero value means no overrides.
type Options struct {
	charsetReader   func(label string, r io.Reader) (io.Reader, error)
	entityMap       map[string]string
	resolveEntities bool
	emitComments    bool
	emitPI          bool
	emitDirectives  bool
	trackLineColumn bool
	strict          bool
	maxDepth        int
	maxAttrs        int
	maxTokenSize    int
	bufferSize      int

	charsetReaderSet   bool
	entityMapSet       bool
	resolveEntitiesSet bool
	emitCommentsSet    bool
	emitPISet          bool
	emitDirectivesSet  bool
	trackLineColumnSet bool
	strictSet          bool
	maxDepthSet        bool
	maxAttrsSet        bool
	maxTokenSizeSet    bool
	bufferSizeSet      bool
}

// JoinOptions combines multiple option sets into one in declaration order.
// Later options override earlier ones when set.
func JoinOptions(srcs ...Options) Options {
	var merged Options
	for _, src := range srcs {
		merged.merge(src)
	}
	return merged
}

func (opts *Options) merge(src Options) {
	if src.charsetReaderSet {
		opts.charsetReader, opts.charsetReaderSet = src.charsetReader, true
	}
	if src.entityMapSet {
		opts.entityMap, opts.entityMapSet = src.entityMap, true
	}
	if src.resolveEntitiesSet {
		opts.resolveEntities, opts.resolveEntitiesSet = src.resolveEntities, true
	}
	if src.emitCommentsSet {
		opts.emitComments, opts.emitCommentsSet = src.emitComments, true
	}
	if src.emitPISet {
		opts.emitPI, opts.emitPISet = src.emitPI, true
	}
	if src.emitDirectivesSet {
		opts.emitDirectives, opts.emitDirectivesSet = src.emitDirectives, true
	}
	if src.trackLineColumnSet {
		opts.trackLineColumn, opts.trackLineColumnSet = src.trackLineColumn, true
	}
	if src.strictSet {
		opts.strict, opts.strictSet = src.strict, true
	}
	if src.maxDepthSet {
		opts.maxDepth, opts.maxDepthSet = src.maxDepth, true
	}
	if src.maxAttrsSet {
		opts.maxAttrs, opts.maxAttrsSet = src.maxAttrs, true
	}
	if src.maxTokenSizeSet {
		opts.maxTokenSize, opts.maxTokenSizeSet = src.maxTokenSize, true
	}
	if src.bufferSizeSet {
		opts.bufferSize, opts.bufferSizeSet = src.bufferSize, true
	}
}

// WithCharsetReader registers a decoder for encodings other than UTF-8.
func WithCharsetReader(fn func(label string, r io.Reader) (io.Reader, error)) Options {
	return Options{charsetReader: fn, charsetReaderSet: true}
}

// WithEntityMap configures custom named entity replacements.
func WithEntityMap(values map[string]string) Options {
	if values == nil {
		return Options{entityMapSet: true}
	}
	return Options{entityMap: maps.Clone(values), entityMapSet: true}
}

// ResolveEntities controls whether entity references in text and attribute
// values are expanded. Unresolved spans keep the raw references.
func ResolveEntities(value bool) Options {
	return Options{resolveEntities: value, resolveEntitiesSet: true}
}

// EmitComments controls whether comment tokens are returned.
func EmitComments(value bool) Options {
	return Options{emitComments: value, emitCommentsSet: true}
}

// EmitPI controls whether processing instruction tokens are returned.
func EmitPI(value bool) Options {
	return Options{emitPI: value, emitPISet: true}
}

// EmitDirectives controls whether directive tokens are returned.
func EmitDirectives(value bool) Options {
	return Options{emitDirectives: value, emitDirectivesSet: true}
}

// TrackLineColumn controls whether line and column tracking is enabled.
func TrackLineColumn(value bool) Options {
	return Options{trackLineColumn: value, trackLineColumnSet: true}
}

// Strict enables XML declaration validation: version must come first, and
// encoding and standalone may only follow in that order.
func Strict(value bool) Options {
	return Options{strict: value, strictSet: true}
}

// MaxDepth limits element nesting depth.
func MaxDepth(value int) Options {
	return Options{maxDepth: value, maxDepthSet: true}
}

// MaxAttrs limits the number of attributes on a start element.
func MaxAttrs(value int) Options {
	return Options{maxAttrs: value, maxAttrsSet: true}
}

// MaxTokenSize limits the size of a single token in bytes, markup included.
// Tokens exactly MaxTokenSize bytes long are allowed. The limit is enforced
// while the token is scanned, so an oversized token is rejected before it is
// fully buffered.
func MaxTokenSize(value int) Options {
	return Options{maxTokenSize: value, maxTokenSizeSet: true}
}

// BufferSize sets the initial read buffer size.
func BufferSize(value int) Options {
	return Options{bufferSize: value, bufferSizeSet: true}
}

type decoderOptions struct {
	charsetReader   func(label string, r io.Reader) (io.Reader, error)
	entityMap       map[string]string
	maxDepth        int
	maxAttrs        int
	maxTokenSize    int
	bufferSize      int
	resolveEntities bool
	emitComments    bool
	emitPI          bool
	emitDirectives  bool
	trackLineColumn bool
	strict          bool
}

func resolveOptions(opts Options) decoderOptions {
	resolved := decoderOptions{trackLineColumn: true, bufferSize: defaultBufferSize}
	if opts.charsetReaderSet {
		resolved.charsetReader = opts.charsetReader
	}
	if opts.entityMapSet {
		resolved.entityMap = opts.entityMap
	}
	if opts.resolveEntitiesSet {
		resolved.resolveEntities = opts.resolveEntities
	}
	if opts.emitCommentsSet {
		resolved.emitComments = opts.emitComments
	}
	if opts.emitPISet {
		resolved.emitPI = opts.emitPI
	}
	if opts.emitDirectivesSet {
		resolved.emitDirectives = opts.emitDirectives
	}
	if opts.trackLineColumnSet {
		resolved.trackLineColumn = opts.trackLineColumn
	}
	if opts.strictSet {
		resolved.strict = opts.strict
	}
	if opts.maxDepthSet {
		resolved.maxDepth = normalizeLimit(opts.maxDepth)
	}
	if opts.maxAttrsSet {
		resolved.maxAttrs = normalizeLimit(opts.maxAttrs)
	}
	if opts.maxTokenSizeSet {
		resolved.maxTokenSize = normalizeLimit(opts.maxTokenSize)
	}
	if opts.bufferSizeSet && opts.bufferSize > 0 {
		resolved.bufferSize = opts.bufferSize
	}
	return resolved
}

func normalizeLimit(value int) int {
	return max(value, 0)
}
