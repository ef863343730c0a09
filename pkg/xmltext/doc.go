// Package xmltext is a streaming XML 1.0 tokenizer.
//
// A Decoder returns tokens whose names, attribute values and text are spans
// over its own buffer, valid until the next read. It checks well-formedness
// as it goes and enforces depth, attribute count and token size limits
// while scanning, so an oversized token fails without being buffered whole.
// Namespaces are not resolved.
package xmltext
