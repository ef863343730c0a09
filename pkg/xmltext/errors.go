package xmltext

import (
	"errors"
	"fmt"
)

// Structural and limit errors. They are wrapped in a *SyntaxError and can be
// matched with errors.Is.
var (
	ErrUnexpectedEOF       = errors.New("unexpected EOF")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrTokenTooLarge       = errors.New("token exceeds MaxTokenSize")
	ErrDepthLimit          = errors.New("element depth exceeds MaxDepth")
	ErrAttrLimit           = errors.New("attribute count exceeds MaxAttrs")
	ErrDuplicateAttr       = errors.New("duplicate attribute name")
	ErrMismatchedEndTag    = errors.New("mismatched end element")
	ErrMultipleRoots       = errors.New("multiple root elements")
	ErrContentOutsideRoot  = errors.New("content outside root element")
	ErrMissingRoot         = errors.New("missing root element")
	ErrUnclosedElement     = errors.New("element not closed at end of input")
)

var (
	errNilReader          = errors.New("nil XML reader")
	errInvalidName        = errors.New("invalid XML name")
	errInvalidEntity      = errors.New("invalid entity reference")
	errInvalidCharRef     = errors.New("invalid character reference")
	errInvalidChar        = errors.New("invalid XML character")
	errInvalidToken       = errors.New("invalid XML token")
	errInvalidComment     = errors.New("invalid XML comment")
	errInvalidPI          = errors.New("invalid XML processing instruction")
	errInvalidXMLDecl     = errors.New("invalid XML declaration")
	errMisplacedDirective = errors.New("directive outside prolog")
	errDuplicateDirective = errors.New("duplicate directive")
	errMisplacedXMLDecl   = errors.New("XML declaration not at start")
	errDuplicateXMLDecl   = errors.New("duplicate XML declaration")
)

// SyntaxError reports a well-formedness error with location context.
// Element names the tag involved, when there is one.
type SyntaxError struct {
	Offset  int64
	Line    int
	Column  int
	Element string
	Err     error
}

// Error formats the syntax error with location and cause.
func (e *SyntaxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("xml syntax error at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("xml syntax error at offset %d: %v", e.Offset, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SyntaxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// elementError attaches the offending tag name to a scan error.
type elementError struct {
	name string
	err  error
}

func (e *elementError) Error() string { return e.err.Error() }
func (e *elementError) Unwrap() error { return e.err }

// readError carries a failure of the underlying io.Reader, which is returned
// to the caller as is rather than as a syntax error.
type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }
