package xmlevent

import (
	"io"

	"github.com/jacoelho/xmlhub/pkg/xmltext"
)

// Options holds reader configuration values.
// The zero value means no overrides.
type Options struct {
	text              []xmltext.Options
	keepWhitespace    bool
	keepWhitespaceSet bool
}

// JoinOptions combines multiple option sets into one in declaration order.
// Later options override earlier ones when set.
func JoinOptions(srcs ...Options) Options {
	var merged Options
	for _, src := range srcs {
		merged.text = append(merged.text, src.text...)
		if src.keepWhitespaceSet {
			merged.keepWhitespace = src.keepWhitespace
			merged.keepWhitespaceSet = true
		}
	}
	return merged
}

func textOption(opt xmltext.Options) Options {
	return Options{text: []xmltext.Options{opt}}
}

// WithCharsetReader registers a decoder for non-UTF-8 encodings declared in
// the XML declaration or byte order mark.
func WithCharsetReader(fn func(label string, r io.Reader) (io.Reader, error)) Options {
	return textOption(xmltext.WithCharsetReader(fn))
}

// WithEntityMap configures custom named entity replacements.
func WithEntityMap(values map[string]string) Options {
	return textOption(xmltext.WithEntityMap(values))
}

// KeepWhitespace controls whether whitespace-only text is emitted.
// By default it is dropped.
func KeepWhitespace(value bool) Options {
	return Options{keepWhitespace: value, keepWhitespaceSet: true}
}

// MaxDepth limits element nesting depth (0 means unlimited).
func MaxDepth(value int) Options {
	return textOption(xmltext.MaxDepth(value))
}

// MaxAttrs limits the number of attributes on a start element (0 means unlimited).
func MaxAttrs(value int) Options {
	return textOption(xmltext.MaxAttrs(value))
}

// MaxTokenSize limits the size in bytes of a single token, markup included
// (0 means unlimited). A start tag counts its attributes. Oversized tokens
// are rejected while they are read, before they are fully buffered.
func MaxTokenSize(value int) Options {
	return textOption(xmltext.MaxTokenSize(value))
}
