package xmlevent

import (
	"errors"
	"fmt"
	"io"

	xherrors "github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/pkg/xmltext"
)

var errNilReader = errors.New("nil XML reader")

// Reader adapts an xmltext token stream into routed events.
// Names are never namespace-resolved. The underlying decoder enforces
// well-formedness, so a Reader never yields a stray end tag and reports
// elements left open at the end of input.
type Reader struct {
	dec            *xmltext.Decoder
	line           int
	column         int
	keepWhitespace bool
}

// NewReader creates a new event reader for r.
func NewReader(r io.Reader, opts ...Options) (*Reader, error) {
	if r == nil {
		return nil, errNilReader
	}
	options := JoinOptions(opts...)
	textOpts := append([]xmltext.Options{
		xmltext.ResolveEntities(true),
		xmltext.Strict(true),
	}, options.text...)
	return &Reader{
		dec:            xmltext.NewDecoder(r, textOpts...),
		keepWhitespace: options.keepWhitespace,
	}, nil
}

// Next returns the next event, or io.EOF once the input is exhausted.
func (r *Reader) Next() (Event, error) {
	if r == nil || r.dec == nil {
		return Event{}, errNilReader
	}
	for {
		tok, err := r.dec.ReadToken()
		if err != nil {
			return Event{}, wrapError(err)
		}
		r.line, r.column = tok.Line, tok.Column
		switch tok.Kind {
		case xmltext.KindStartElement:
			return r.startEvent(tok)
		case xmltext.KindEndElement:
			return Event{
				Kind:   EventEndElement,
				Name:   r.dec.SpanString(tok.Name.Full),
				Line:   tok.Line,
				Column: tok.Column,
			}, nil
		case xmltext.KindCharData, xmltext.KindCDATA:
			text := r.dec.SpanBytes(tok.Text)
			if tok.Kind == xmltext.KindCharData && !r.keepWhitespace && isWhitespace(text) {
				continue
			}
			return Event{
				Kind:   EventText,
				Text:   string(text),
				Line:   tok.Line,
				Column: tok.Column,
			}, nil
		default:
			// comments, processing instructions and directives carry no routing
		}
	}
}

// CurrentPos returns the line and column where the most recent event began.
func (r *Reader) CurrentPos() (line, column int) {
	if r == nil {
		return 0, 0
	}
	return r.line, r.column
}

// Depth reports the number of currently open elements.
func (r *Reader) Depth() int {
	if r == nil {
		return 0
	}
	return r.dec.StackDepth()
}

// InputOffset reports how many bytes of the document have been consumed.
func (r *Reader) InputOffset() int64 {
	if r == nil {
		return 0
	}
	return r.dec.InputOffset()
}

func (r *Reader) startEvent(tok xmltext.Token) (Event, error) {
	ev := Event{
		Kind:   EventStartElement,
		Name:   r.dec.SpanString(tok.Name.Full),
		Line:   tok.Line,
		Column: tok.Column,
	}
	if len(tok.Attrs) > 0 {
		ev.Attrs = make(Attributes, 0, len(tok.Attrs))
		for _, a := range tok.Attrs {
			ev.Attrs = append(ev.Attrs, Attr{
				Name:  r.dec.SpanString(a.Name.Full),
				Value: r.dec.SpanString(a.ValueSpan),
			})
		}
	}
	if r.dec.SelfClosing() {
		ev.SelfClosing = true
		// the synthesized end token reads no input
		if _, err := r.dec.ReadToken(); err != nil {
			return Event{}, wrapError(err)
		}
	}
	return ev, nil
}

var syntaxCodes = []struct {
	err  error
	code xherrors.ErrorCode
}{
	{xmltext.ErrMismatchedEndTag, xherrors.ErrUnbalancedEnd},
	{xmltext.ErrMultipleRoots, xherrors.ErrContentOutsideRoot},
	{xmltext.ErrContentOutsideRoot, xherrors.ErrContentOutsideRoot},
	{xmltext.ErrMissingRoot, xherrors.ErrNoRoot},
	{xmltext.ErrUnclosedElement, xherrors.ErrUnclosedElement},
	{xmltext.ErrDuplicateAttr, xherrors.ErrDuplicateAttribute},
	{xmltext.ErrTokenTooLarge, xherrors.ErrLimitExceeded},
	{xmltext.ErrDepthLimit, xherrors.ErrLimitExceeded},
	{xmltext.ErrAttrLimit, xherrors.ErrLimitExceeded},
	{xmltext.ErrUnsupportedEncoding, xherrors.ErrUnsupportedEncoding},
}

func syntaxCode(err error) xherrors.ErrorCode {
	for _, c := range syntaxCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return xherrors.ErrXMLSyntax
}

func wrapError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	var syntaxErr *xmltext.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &xherrors.Error{
			Code:    syntaxCode(syntaxErr.Err),
			Message: syntaxErr.Err.Error(),
			Element: syntaxErr.Element,
			Line:    syntaxErr.Line,
			Column:  syntaxErr.Column,
		}
	}
	return fmt.Errorf("read xml: %w", err)
}

func isWhitespace(data []byte) bool {
	for _, b := range data {
		if b != ' ' && b != '\t' && b != '\r' && b != '\n' {
			return false
		}
	}
	return true
}
