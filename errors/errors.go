package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a dispatch failure. Codes are errors themselves so
// callers can match them with errors.Is.
type ErrorCode string

const (
	// ErrXMLSyntax indicates the tokenizer rejected the document.
	ErrXMLSyntax ErrorCode = "xml-syntax"
	// ErrNoRoot indicates the document ended before any element was seen.
	ErrNoRoot ErrorCode = "xml-no-root"
	// ErrUnbalancedEnd indicates an end tag with no matching open element.
	ErrUnbalancedEnd ErrorCode = "xml-unbalanced-end"
	// ErrUnclosedElement indicates the document ended with elements still open.
	ErrUnclosedElement ErrorCode = "xml-unclosed-element"
	// ErrContentOutsideRoot indicates elements or text outside the root element.
	ErrContentOutsideRoot ErrorCode = "xml-content-outside-root"
	// ErrDuplicateAttribute indicates an attribute name repeated on one element.
	ErrDuplicateAttribute ErrorCode = "xml-duplicate-attribute"
	// ErrLimitExceeded indicates a configured depth, attribute or token limit was hit.
	ErrLimitExceeded ErrorCode = "xml-limit-exceeded"
	// ErrUnsupportedEncoding indicates a declared encoding with no charset reader.
	ErrUnsupportedEncoding ErrorCode = "xml-unsupported-encoding"

	// ErrNilRegistry indicates a hub was constructed without a registry.
	ErrNilRegistry ErrorCode = "hub-nil-registry"
	// ErrNilSource indicates a nil reader or event source was passed to a hub.
	ErrNilSource ErrorCode = "hub-nil-source"
	// ErrEmptyIdentifier indicates a registration without an element name.
	ErrEmptyIdentifier ErrorCode = "registry-empty-identifier"
	// ErrNilFactory indicates a registration without a factory.
	ErrNilFactory ErrorCode = "registry-nil-factory"
	// ErrDuplicateIdentifier indicates the element name is already registered.
	ErrDuplicateIdentifier ErrorCode = "registry-duplicate-identifier"
	// ErrRegistryBusy indicates a mutation while documents are being processed.
	ErrRegistryBusy ErrorCode = "registry-busy"
	// ErrInvalidHandler indicates a factory produced no usable handler.
	ErrInvalidHandler ErrorCode = "registry-invalid-handler"

	// ErrHandlerFailed indicates a handler callback returned an error.
	ErrHandlerFailed ErrorCode = "handler-failed"
)

// Class groups error codes by how a caller should react.
type Class int

const (
	ClassUnknown Class = iota
	// ClassMalformedInput means the document must be corrected and reprocessed.
	ClassMalformedInput
	// ClassConfiguration means the registry or hub is misconfigured.
	ClassConfiguration
	// ClassHandler means a registered handler aborted the document.
	ClassHandler
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassMalformedInput:
		return "malformed-input"
	case ClassConfiguration:
		return "configuration"
	case ClassHandler:
		return "handler"
	default:
		return "unknown"
	}
}

// Error returns the code text.
func (c ErrorCode) Error() string {
	return string(c)
}

// Class reports the class of the code.
func (c ErrorCode) Class() Class {
	switch {
	case strings.HasPrefix(string(c), "xml-"):
		return ClassMalformedInput
	case strings.HasPrefix(string(c), "hub-"), strings.HasPrefix(string(c), "registry-"):
		return ClassConfiguration
	case c == ErrHandlerFailed:
		return ClassHandler
	default:
		return ClassUnknown
	}
}

// Error describes a dispatch failure with its code and, when known, the
// element and input position where it happened.
type Error struct {
	Err     error
	Code    ErrorCode
	Message string
	Element string
	Line    int
	Column  int
}

// Error formats the error for display, including code, message, and context.
func (e *Error) Error() string {
	if e == nil {
		return "xmlhub error <nil>"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Element != "" {
		b.WriteString(fmt.Sprintf(" at <%s>", e.Element))
	}
	if e.Line > 0 && e.Column > 0 {
		if e.Element == "" {
			b.WriteString(fmt.Sprintf(" at line %d, column %d", e.Line, e.Column))
		} else {
			b.WriteString(fmt.Sprintf(" (line %d, column %d)", e.Line, e.Column))
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the error code, so errors.Is(err, ErrUnbalancedEnd) works.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// Class reports the class of the error code.
func (e *Error) Class() Class {
	if e == nil {
		return ClassUnknown
	}
	return e.Code.Class()
}

// HasPosition reports whether line and column are set.
func (e *Error) HasPosition() bool {
	return e != nil && e.Line > 0 && e.Column > 0
}

// New builds an Error with a code and message.
func New(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf formats a message and builds an Error.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error with a code and message around a cause.
func Wrap(code ErrorCode, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// ClassOf reports the class of the first *Error in the chain.
func ClassOf(err error) Class {
	e, ok := As(err)
	if !ok {
		return ClassUnknown
	}
	return e.Class()
}

// IsMalformedInput reports whether err was caused by a malformed document.
func IsMalformedInput(err error) bool {
	return ClassOf(err) == ClassMalformedInput
}

// IsConfiguration reports whether err was caused by hub or registry misconfiguration.
func IsConfiguration(err error) bool {
	return ClassOf(err) == ClassConfiguration
}

// IsHandlerFailure reports whether err was returned by a handler callback.
func IsHandlerFailure(err error) bool {
	return ClassOf(err) == ClassHandler
}
