package xmltext

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	defaultBufferSize = 32 * 1024
	maxInternedNames  = 4096
	attrSeenLinearMax = 8
	maxDeclScan       = 1024
)

// Decoder streams XML tokens as spans over its read buffer.
//
// It enforces well-formedness while scanning: matching end tags, a single
// root element, no content outside the root, unique attribute names and the
// configured depth, attribute and token size limits. Names are literal
// qualified names; namespace declarations are ordinary attributes.
type Decoder struct {
	buf        spanBuffer
	scratch    spanBuffer
	attrValues spanBuffer
	r          io.Reader
	err        error
	readErr    error
	entities   entityResolver
	opts       decoderOptions
	names      map[string]string
	attrSeen   map[string]struct{}
	attrs      []AttrSpan
	stack      []string
	pendingTok Token
	base       int64
	pos        int
	tokStart   int
	line       int
	column     int

	eof            bool
	pendingCR      bool
	pendingEnd     bool
	selfClosing    bool
	rootSeen       bool
	afterRoot      bool
	xmlDeclSeen    bool
	seenNonXMLDecl bool
	directiveSeen  bool
}

// NewDecoder creates a new XML decoder for r. Encoding detection peeks at
// the start of the input; a failure there is returned by the first read.
func NewDecoder(r io.Reader, opts ...Options) *Decoder {
	d := &Decoder{
		opts:  resolveOptions(JoinOptions(opts...)),
		names: make(map[string]string),
	}
	d.entities = entityResolver{custom: d.opts.entityMap}
	if d.opts.trackLineColumn {
		d.line, d.column = 1, 1
	}
	if r == nil {
		d.err = errNilReader
		return d
	}
	reader, ok := r.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReaderSize(r, d.opts.bufferSize)
	}
	wrapped, err := wrapCharsetReader(reader, d.opts.charsetReader)
	if err != nil {
		var re *readError
		if errors.As(err, &re) {
			d.err = re.err
		} else {
			d.err = &SyntaxError{Line: d.line, Column: d.column, Err: err}
		}
		return d
	}
	d.r = wrapped
	return d
}

// ReadToken returns the next token. Spans in the token, including its
// attribute slice, are only valid until the next ReadToken call.
//
// A self-closing element is returned as a start token followed by a
// synthesized end token; SelfClosing reports which form was written.
func (d *Decoder) ReadToken() (Token, error) {
	if d == nil {
		return Token{}, errNilReader
	}
	if d.err != nil {
		return Token{}, d.err
	}
	tok, selfClosing, err := d.next()
	if err != nil {
		return Token{}, d.fail(err)
	}
	d.selfClosing = tok.Kind == KindStartElement && selfClosing
	return tok, nil
}

// SelfClosing reports whether the start element most recently returned by
// ReadToken was written as an empty-element tag. Its end token has not
// consumed any input.
func (d *Decoder) SelfClosing() bool {
	return d != nil && d.selfClosing
}

// SpanBytes returns the bytes referenced by the span.
func (d *Decoder) SpanBytes(s Span) []byte {
	return s.bytes()
}

// SpanString returns a copy of the span bytes as a string.
func (d *Decoder) SpanString(s Span) string {
	return string(s.bytes())
}

// StackDepth reports the current element nesting depth.
func (d *Decoder) StackDepth() int {
	if d == nil {
		return 0
	}
	return len(d.stack)
}

// InputOffset reports the absolute byte offset of the next read position.
func (d *Decoder) InputOffset() int64 {
	if d == nil {
		return 0
	}
	return d.base + int64(d.pos)
}

// InputPos reports the 1-based line and column of the next read position,
// or zeros when line tracking is disabled.
func (d *Decoder) InputPos() (line, column int) {
	if d == nil {
		return 0, 0
	}
	return d.line, d.column
}

func (d *Decoder) next() (Token, bool, error) {
	if d.pendingEnd {
		d.pendingEnd = false
		d.stack = d.stack[:len(d.stack)-1]
		if len(d.stack) == 0 {
			d.afterRoot = true
		}
		return d.pendingTok, false, nil
	}
	for {
		tok, selfClosing, err := d.scanToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				switch {
				case len(d.stack) > 0:
					return Token{}, false, &elementError{name: d.stack[len(d.stack)-1], err: ErrUnclosedElement}
				case !d.rootSeen:
					return Token{}, false, ErrMissingRoot
				}
				return Token{}, false, io.EOF
			}
			return Token{}, false, err
		}
		if err := d.apply(&tok, selfClosing); err != nil {
			return Token{}, false, &placedError{line: tok.Line, column: tok.Column, err: err}
		}
		switch {
		case tok.Kind == KindComment && !d.opts.emitComments,
			tok.Kind == KindPI && !d.opts.emitPI,
			tok.Kind == KindDirective && !d.opts.emitDirectives:
			continue
		}
		return tok, selfClosing, nil
	}
}

func (d *Decoder) apply(tok *Token, selfClosing bool) error {
	if err := d.checkPlacement(tok); err != nil {
		return err
	}
	switch tok.Kind {
	case KindStartElement:
		name := d.intern(tok.Name.Full.bytes())
		if d.opts.maxDepth > 0 && len(d.stack)+1 > d.opts.maxDepth {
			return &elementError{name: name, err: ErrDepthLimit}
		}
		d.stack = append(d.stack, name)
		if selfClosing {
			d.pendingEnd = true
			d.pendingTok = Token{
				Kind:   KindEndElement,
				Name:   tok.Name,
				Line:   d.line,
				Column: d.column,
			}
		}
	case KindEndElement:
		name := tok.Name.Full.bytes()
		n := len(d.stack)
		if n == 0 {
			return &elementError{name: string(name), err: fmt.Errorf("%w: </%s> has no open element", ErrMismatchedEndTag, name)}
		}
		if d.stack[n-1] != string(name) {
			return &elementError{name: string(name), err: fmt.Errorf("%w: <%s> closed by </%s>", ErrMismatchedEndTag, d.stack[n-1], name)}
		}
		d.stack = d.stack[:n-1]
		if n == 1 {
			d.afterRoot = true
		}
	}
	return nil
}

func (d *Decoder) checkPlacement(tok *Token) error {
	if tok.IsXMLDecl {
		if d.xmlDeclSeen {
			return errDuplicateXMLDecl
		}
		if d.seenNonXMLDecl {
			return errMisplacedXMLDecl
		}
		d.xmlDeclSeen = true
	} else {
		d.seenNonXMLDecl = true
	}
	switch tok.Kind {
	case KindDirective:
		if d.rootSeen {
			return errMisplacedDirective
		}
		if d.directiveSeen {
			return errDuplicateDirective
		}
		d.directiveSeen = true
	case KindCharData:
		// references are not allowed outside the root either, so the raw
		// bytes decide
		if len(d.stack) == 0 && !isWhitespaceBytes(tok.Raw.bytes()) {
			return ErrContentOutsideRoot
		}
	case KindCDATA:
		if len(d.stack) == 0 {
			return ErrContentOutsideRoot
		}
	case KindStartElement:
		if d.afterRoot || (d.rootSeen && len(d.stack) == 0) {
			return &elementError{name: string(tok.Name.Full.bytes()), err: ErrMultipleRoots}
		}
		d.rootSeen = true
	}
	return nil
}

func (d *Decoder) intern(name []byte) string {
	if s, ok := d.names[string(name)]; ok {
		return s
	}
	s := string(name)
	if len(d.names) < maxInternedNames {
		d.names[s] = s
	}
	return s
}

// placedError pins an error to the start of the token that caused it.
type placedError struct {
	line   int
	column int
	err    error
}

func (e *placedError) Error() string { return e.err.Error() }
func (e *placedError) Unwrap() error { return e.err }

func (d *Decoder) fail(err error) error {
	if errors.Is(err, io.EOF) && !errors.Is(err, ErrUnexpectedEOF) {
		d.err = io.EOF
		return io.EOF
	}
	var re *readError
	if errors.As(err, &re) {
		d.err = re.err
		return re.err
	}
	syntax := &SyntaxError{
		Offset: d.base + int64(d.pos),
		Line:   d.line,
		Column: d.column,
	}
	var placed *placedError
	if errors.As(err, &placed) {
		syntax.Line, syntax.Column = placed.line, placed.column
		err = placed.err
	}
	var named *elementError
	if errors.As(err, &named) {
		syntax.Element = named.name
		err = named.err
	}
	syntax.Err = err
	d.err = syntax
	return syntax
}

func wrapCharsetReader(reader *bufio.Reader, charsetReader func(label string, r io.Reader) (io.Reader, error)) (io.Reader, error) {
	if err := discardUTF8BOM(reader); err != nil {
		return nil, err
	}
	label, err := detectEncoding(reader)
	if err != nil {
		return nil, err
	}
	if label == "" {
		return reader, nil
	}
	if charsetReader == nil {
		return nil, fmt.Errorf("%w %q: no charset reader configured", ErrUnsupportedEncoding, label)
	}
	decoded, err := charsetReader(label, reader)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnsupportedEncoding, label, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEncoding, label)
	}
	return decoded, nil
}

func peekErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
		return nil
	}
	return &readError{err: err}
}

func discardUTF8BOM(r *bufio.Reader) error {
	peek, err := r.Peek(3)
	if err := peekErr(err); err != nil {
		return err
	}
	if bytes.HasPrefix(peek, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = r.Discard(3)
	}
	return nil
}

func detectEncoding(r *bufio.Reader) (string, error) {
	peek, err := r.Peek(4)
	if err := peekErr(err); err != nil {
		return "", err
	}
	switch {
	case bytes.HasPrefix(peek, []byte{0xFE, 0xFF}), bytes.HasPrefix(peek, []byte{0xFF, 0xFE}):
		return "utf-16", nil
	case bytes.Equal(peek, []byte{0x00, 0x3C, 0x00, 0x3F}):
		return "utf-16be", nil
	case bytes.Equal(peek, []byte{0x3C, 0x00, 0x3F, 0x00}):
		return "utf-16le", nil
	}
	return detectXMLDeclEncoding(r)
}

func detectXMLDeclEncoding(r *bufio.Reader) (string, error) {
	const prefix = "<?xml"
	peek, err := r.Peek(len(prefix))
	if err := peekErr(err); err != nil {
		return "", err
	}
	if !bytes.Equal(peek, []byte(prefix)) {
		return "", nil
	}
	decl, err := r.Peek(maxDeclScan)
	if err := peekErr(err); err != nil {
		return "", err
	}
	end := bytes.Index(decl, []byte("?>"))
	if end < 0 {
		return "", nil
	}
	label := ""
	attrs, _ := parseDecl(decl[len(prefix):end])
	for _, attr := range attrs {
		if attr.name == "encoding" {
			label = attr.value
		}
	}
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return "", nil
	}
	return label, nil
}
