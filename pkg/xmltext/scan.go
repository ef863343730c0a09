package xmltext

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

const maxEmptyReads = 100

var (
	litComment = []byte("<!--")
	litCDATA   = []byte("<![CDATA[")
	endComment = []byte("-->")
	endCDATA   = []byte("]]>")
	endPI      = []byte("?>")
)

func (d *Decoder) scanToken() (Token, bool, error) {
	d.compact()
	d.tokStart = d.pos
	d.attrs = d.attrs[:0]
	d.scratch.data = d.scratch.data[:0]
	d.attrValues.data = d.attrValues.data[:0]

	if err := d.ensure(d.pos); err != nil {
		return Token{}, false, err
	}
	if d.buf.data[d.pos] != '<' {
		tok, err := d.scanCharData()
		return tok, false, unexpected(err)
	}
	if err := d.ensure(d.pos + 1); err != nil {
		return Token{}, false, unexpected(err)
	}
	var (
		tok         Token
		selfClosing bool
		err         error
	)
	switch d.buf.data[d.pos+1] {
	case '/':
		tok, err = d.scanEndTag()
	case '?':
		tok, err = d.scanPI()
	case '!':
		tok, err = d.scanBang()
	default:
		tok, selfClosing, err = d.scanStartTag()
	}
	return tok, selfClosing, unexpected(err)
}

// unexpected turns an end of input inside a token into ErrUnexpectedEOF.
func unexpected(err error) error {
	if err != nil && errors.Is(err, io.EOF) {
		return ErrUnexpectedEOF
	}
	return err
}

func (d *Decoder) checkSize(start, end int) error {
	if d.opts.maxTokenSize > 0 && end-start > d.opts.maxTokenSize {
		return ErrTokenTooLarge
	}
	return nil
}

func (d *Decoder) scanCharData() (Token, error) {
	line, column := d.line, d.column
	start := d.pos
	from := start
	end := -1
	for end < 0 {
		if idx := bytes.IndexByte(d.buf.data[from:], '<'); idx >= 0 {
			end = from + idx
			break
		}
		if err := d.checkSize(start, len(d.buf.data)); err != nil {
			return Token{}, err
		}
		from = len(d.buf.data)
		if err := d.readMore(); err != nil {
			if !errors.Is(err, io.EOF) {
				return Token{}, err
			}
			end = len(d.buf.data)
		}
	}
	if err := d.checkSize(start, end); err != nil {
		return Token{}, err
	}
	raw := d.buf.data[start:end]
	if bytes.Contains(raw, endCDATA) {
		return Token{}, errInvalidToken
	}
	if err := validateXMLChars(raw); err != nil {
		return Token{}, err
	}
	text := makeSpan(&d.buf, start, end)
	if bytes.IndexByte(raw, '&') >= 0 {
		if d.opts.resolveEntities {
			out, err := unescapeInto(d.scratch.data[:0], raw, &d.entities, d.opts.maxTokenSize)
			if err != nil {
				return Token{}, err
			}
			d.scratch.data = out
			text = makeSpan(&d.scratch, 0, len(out))
		} else if err := validateEntities(raw, &d.entities); err != nil {
			return Token{}, err
		}
	}
	d.advance(end - start)
	return Token{
		Kind:   KindCharData,
		Text:   text,
		Raw:    makeSpan(&d.buf, start, end),
		Line:   line,
		Column: column,
	}, nil
}

func (d *Decoder) scanStartTag() (Token, bool, error) {
	line, column := d.line, d.column
	start := d.pos
	d.advanceRaw(1)
	name, err := d.scanQName()
	if err != nil {
		return Token{}, false, err
	}
	space, err := d.skipWhitespace()
	if err != nil {
		return Token{}, false, err
	}
	selfClosing := false
	for {
		if err := d.ensure(d.pos); err != nil {
			return Token{}, false, err
		}
		b := d.buf.data[d.pos]
		if b == '>' {
			d.advanceRaw(1)
			break
		}
		if b == '/' {
			d.advanceRaw(1)
			if err := d.expectByte('>'); err != nil {
				return Token{}, false, err
			}
			selfClosing = true
			break
		}
		if !space {
			return Token{}, false, errInvalidToken
		}
		attr, err := d.scanAttr()
		if err != nil {
			return Token{}, false, err
		}
		if d.isDuplicateAttr(attr.Name.Full.bytes()) {
			return Token{}, false, &elementError{name: string(name.Full.bytes()), err: ErrDuplicateAttr}
		}
		d.attrs = append(d.attrs, attr)
		if d.opts.maxAttrs > 0 && len(d.attrs) > d.opts.maxAttrs {
			return Token{}, false, &elementError{name: string(name.Full.bytes()), err: ErrAttrLimit}
		}
		if space, err = d.skipWhitespace(); err != nil {
			return Token{}, false, err
		}
	}
	if err := d.checkSize(start, d.pos); err != nil {
		return Token{}, false, err
	}
	return Token{
		Kind:   KindStartElement,
		Name:   name,
		Attrs:  d.attrs,
		Raw:    makeSpan(&d.buf, start, d.pos),
		Line:   line,
		Column: column,
	}, selfClosing, nil
}

func (d *Decoder) scanAttr() (AttrSpan, error) {
	name, err := d.scanQName()
	if err != nil {
		return AttrSpan{}, err
	}
	if _, err := d.skipWhitespace(); err != nil {
		return AttrSpan{}, err
	}
	if err := d.expectByte('='); err != nil {
		return AttrSpan{}, err
	}
	if _, err := d.skipWhitespace(); err != nil {
		return AttrSpan{}, err
	}
	if err := d.ensure(d.pos); err != nil {
		return AttrSpan{}, err
	}
	quote := d.buf.data[d.pos]
	if quote != '"' && quote != '\'' {
		return AttrSpan{}, errInvalidToken
	}
	d.advanceRaw(1)
	value, err := d.scanAttrValue(quote)
	if err != nil {
		return AttrSpan{}, err
	}
	return AttrSpan{Name: name, ValueSpan: value}, nil
}

func (d *Decoder) scanAttrValue(quote byte) (Span, error) {
	start := d.pos
	for {
		data := d.buf.data[d.pos:]
		q := bytes.IndexByte(data, quote)
		lt := bytes.IndexByte(data, '<')
		if lt >= 0 && (q < 0 || lt < q) {
			return Span{}, errInvalidToken
		}
		if q >= 0 {
			d.advance(q)
			break
		}
		d.advance(len(data))
		if err := d.checkSize(d.tokStart, d.pos); err != nil {
			return Span{}, err
		}
		if err := d.readMore(); err != nil {
			return Span{}, err
		}
	}
	end := d.pos
	d.advanceRaw(1)
	raw := d.buf.data[start:end]
	if err := validateXMLChars(raw); err != nil {
		return Span{}, err
	}
	if bytes.IndexByte(raw, '&') < 0 {
		return makeSpan(&d.buf, start, end), nil
	}
	if !d.opts.resolveEntities {
		if err := validateEntities(raw, &d.entities); err != nil {
			return Span{}, err
		}
		return makeSpan(&d.buf, start, end), nil
	}
	from := len(d.attrValues.data)
	out, err := unescapeInto(d.attrValues.data, raw, &d.entities, d.opts.maxTokenSize)
	if err != nil {
		return Span{}, err
	}
	d.attrValues.data = out
	return makeSpan(&d.attrValues, from, len(out)), nil
}

func (d *Decoder) isDuplicateAttr(name []byte) bool {
	if len(d.attrs) < attrSeenLinearMax {
		for _, attr := range d.attrs {
			if bytes.Equal(attr.Name.Full.bytes(), name) {
				return true
			}
		}
		return false
	}
	if len(d.attrs) == attrSeenLinearMax {
		if d.attrSeen == nil {
			d.attrSeen = make(map[string]struct{}, attrSeenLinearMax*2)
		}
		clear(d.attrSeen)
		for _, attr := range d.attrs {
			d.attrSeen[string(attr.Name.Full.bytes())] = struct{}{}
		}
	}
	if _, ok := d.attrSeen[string(name)]; ok {
		return true
	}
	d.attrSeen[string(name)] = struct{}{}
	return false
}

func (d *Decoder) scanEndTag() (Token, error) {
	line, column := d.line, d.column
	start := d.pos
	d.advanceRaw(2)
	name, err := d.scanQName()
	if err != nil {
		return Token{}, err
	}
	if _, err := d.skipWhitespace(); err != nil {
		return Token{}, err
	}
	if err := d.expectByte('>'); err != nil {
		return Token{}, err
	}
	if err := d.checkSize(start, d.pos); err != nil {
		return Token{}, err
	}
	return Token{
		Kind:   KindEndElement,
		Name:   name,
		Raw:    makeSpan(&d.buf, start, d.pos),
		Line:   line,
		Column: column,
	}, nil
}

func (d *Decoder) scanPI() (Token, error) {
	line, column := d.line, d.column
	start := d.pos
	d.advanceRaw(2)
	targetStart := d.pos
	if _, err := d.scanName(false); err != nil {
		return Token{}, err
	}
	target := d.buf.data[targetStart:d.pos]
	isXMLDecl := len(target) == 3 && bytes.EqualFold(target, []byte("xml"))
	if isXMLDecl && string(target) != "xml" {
		return Token{}, errInvalidPI
	}
	space, err := d.skipWhitespace()
	if err != nil {
		return Token{}, err
	}
	end, err := d.scanUntil(endPI)
	if err != nil {
		return Token{}, err
	}
	if !space && end != d.pos {
		return Token{}, errInvalidPI
	}
	body := d.buf.data[d.pos:end]
	if err := validateXMLChars(body); err != nil {
		return Token{}, err
	}
	if isXMLDecl {
		if _, ok := parseDecl(body); !ok && d.opts.strict {
			return Token{}, errInvalidXMLDecl
		}
	}
	d.advance(end + len(endPI) - d.pos)
	if err := d.checkSize(start, d.pos); err != nil {
		return Token{}, err
	}
	return Token{
		Kind:      KindPI,
		Name:      makeQNameSpan(&d.buf, targetStart, targetStart+len(target), -1),
		Text:      makeSpan(&d.buf, end-len(body), end),
		Raw:       makeSpan(&d.buf, start, d.pos),
		Line:      line,
		Column:    column,
		IsXMLDecl: isXMLDecl,
	}, nil
}

func (d *Decoder) scanBang() (Token, error) {
	ok, err := d.matchLiteral(litComment)
	if err != nil {
		return Token{}, err
	}
	if ok {
		return d.scanDelimited(KindComment, len(litComment), endComment)
	}
	if ok, err = d.matchLiteral(litCDATA); err != nil {
		return Token{}, err
	}
	if ok {
		return d.scanDelimited(KindCDATA, len(litCDATA), endCDATA)
	}
	return d.scanDirective()
}

func (d *Decoder) scanDelimited(kind Kind, open int, closer []byte) (Token, error) {
	line, column := d.line, d.column
	start := d.pos
	d.advanceRaw(open)
	end, err := d.scanUntil(closer)
	if err != nil {
		return Token{}, err
	}
	body := d.buf.data[d.pos:end]
	if kind == KindComment && (bytes.Contains(body, []byte("--")) || bytes.HasSuffix(body, []byte("-"))) {
		return Token{}, errInvalidComment
	}
	if err := validateXMLChars(body); err != nil {
		return Token{}, err
	}
	bodyStart := d.pos
	d.advance(end + len(closer) - d.pos)
	if err := d.checkSize(start, d.pos); err != nil {
		return Token{}, err
	}
	return Token{
		Kind:   kind,
		Text:   makeSpan(&d.buf, bodyStart, end),
		Raw:    makeSpan(&d.buf, start, d.pos),
		Line:   line,
		Column: column,
	}, nil
}

func (d *Decoder) scanDirective() (Token, error) {
	line, column := d.line, d.column
	start := d.pos
	d.advanceRaw(2)
	bodyStart := d.pos
	var quote byte
	depth := 0
	for {
		if err := d.ensure(d.pos); err != nil {
			return Token{}, err
		}
		if err := d.checkSize(start, d.pos); err != nil {
			return Token{}, err
		}
		b := d.buf.data[d.pos]
		switch {
		case quote != 0:
			if b == quote {
				quote = 0
			}
		case b == '"' || b == '\'':
			quote = b
		case b == '[':
			depth++
		case b == ']':
			if depth > 0 {
				depth--
			}
		case b == '>' && depth == 0:
			end := d.pos
			d.advanceRaw(1)
			if end == bodyStart {
				return Token{}, errInvalidToken
			}
			return Token{
				Kind:   KindDirective,
				Text:   makeSpan(&d.buf, bodyStart, end),
				Raw:    makeSpan(&d.buf, start, d.pos),
				Line:   line,
				Column: column,
			}, nil
		}
		d.advance(1)
	}
}

// scanUntil returns the buffer index of the next occurrence of seq at or
// after the read position.
func (d *Decoder) scanUntil(seq []byte) (int, error) {
	from := d.pos
	for {
		if idx := bytes.Index(d.buf.data[from:], seq); idx >= 0 {
			return from + idx, nil
		}
		if err := d.checkSize(d.tokStart, len(d.buf.data)); err != nil {
			return 0, err
		}
		from = max(d.pos, len(d.buf.data)-len(seq)+1)
		if err := d.readMore(); err != nil {
			return 0, err
		}
	}
}

// matchLiteral reports whether the input at the read position starts with
// lit. A shorter input is only an error when it is a prefix of lit.
func (d *Decoder) matchLiteral(lit []byte) (bool, error) {
	if err := d.ensure(d.pos + len(lit) - 1); err != nil {
		if !errors.Is(err, io.EOF) {
			return false, err
		}
		if bytes.HasPrefix(lit, d.buf.data[d.pos:]) {
			return false, ErrUnexpectedEOF
		}
		return false, nil
	}
	return bytes.Equal(d.buf.data[d.pos:d.pos+len(lit)], lit), nil
}

func (d *Decoder) scanQName() (QNameSpan, error) {
	return d.scanName(true)
}

// scanName consumes an XML name. A qualified name allows at most one colon,
// with a non-empty prefix and local part.
func (d *Decoder) scanName(qualified bool) (QNameSpan, error) {
	start := d.pos
	colon := -1
	for {
		if err := d.ensure(d.pos); err != nil {
			return QNameSpan{}, err
		}
		b := d.buf.data[d.pos]
		first := d.pos == start
		if b < utf8.RuneSelf {
			ok := isNameByte(b)
			if first {
				ok = isNameStartByte(b)
			}
			if !ok {
				break
			}
			if b == ':' && qualified {
				if colon >= 0 {
					return QNameSpan{}, errInvalidName
				}
				colon = d.pos
			}
			d.advanceRaw(1)
			continue
		}
		r, size, err := d.peekRune()
		if err != nil {
			return QNameSpan{}, err
		}
		if (first && !isNameStartRune(r)) || (!first && !isNameRune(r)) {
			break
		}
		d.advanceRaw(size)
	}
	end := d.pos
	if end == start || colon == start || colon == end-1 {
		return QNameSpan{}, errInvalidName
	}
	return makeQNameSpan(&d.buf, start, end, colon), nil
}

func (d *Decoder) peekRune() (rune, int, error) {
	for !utf8.FullRune(d.buf.data[d.pos:]) && !d.eof {
		if err := d.readMore(); err != nil && !errors.Is(err, io.EOF) {
			return 0, 0, err
		}
	}
	r, size := utf8.DecodeRune(d.buf.data[d.pos:])
	if size == 0 {
		return 0, 0, io.EOF
	}
	if r == utf8.RuneError && size == 1 {
		return 0, 0, errInvalidChar
	}
	return r, size, nil
}

// skipWhitespace reports whether any whitespace was consumed. End of input
// is left for the caller to report.
func (d *Decoder) skipWhitespace() (bool, error) {
	skipped := false
	for {
		if err := d.ensure(d.pos); err != nil {
			if errors.Is(err, io.EOF) {
				return skipped, nil
			}
			return skipped, err
		}
		if !isWhitespace(d.buf.data[d.pos]) {
			return skipped, nil
		}
		d.advance(1)
		skipped = true
	}
}

func (d *Decoder) expectByte(b byte) error {
	if err := d.ensure(d.pos); err != nil {
		return err
	}
	if d.buf.data[d.pos] != b {
		return errInvalidToken
	}
	d.advanceRaw(1)
	return nil
}

// ensure reads until index idx of the buffer is filled.
func (d *Decoder) ensure(idx int) error {
	for idx >= len(d.buf.data) {
		if err := d.readMore(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) readMore() error {
	if d.readErr != nil {
		return d.readErr
	}
	if d.eof {
		return io.EOF
	}
	if len(d.buf.data) == cap(d.buf.data) {
		if err := d.grow(); err != nil {
			return err
		}
	}
	data := d.buf.data
	for range maxEmptyReads {
		n, err := d.r.Read(data[len(data):cap(data)])
		if n > 0 {
			d.buf.data = data[:len(data)+n]
			if err != nil {
				d.recordReadErr(err)
			}
			return nil
		}
		if err != nil {
			d.recordReadErr(err)
			return d.readErr
		}
	}
	d.readErr = &readError{err: io.ErrNoProgress}
	return d.readErr
}

func (d *Decoder) recordReadErr(err error) {
	if errors.Is(err, io.EOF) {
		d.eof = true
		d.readErr = io.EOF
		return
	}
	d.readErr = &readError{err: err}
}

// grow enlarges the buffer. With a token size limit the buffer never holds
// more than the limit plus one byte past the current token start.
func (d *Decoder) grow() error {
	if err := d.checkSize(d.tokStart, len(d.buf.data)); err != nil {
		return err
	}
	size := max(2*cap(d.buf.data), d.opts.bufferSize)
	if d.opts.maxTokenSize > 0 {
		size = min(size, d.tokStart+d.opts.maxTokenSize+1)
		if size <= cap(d.buf.data) {
			return ErrTokenTooLarge
		}
	}
	next := make([]byte, len(d.buf.data), size)
	copy(next, d.buf.data)
	d.buf.data = next
	return nil
}

// compact drops consumed bytes once they make up half of the buffer. It only
// runs between tokens, so no live span is moved.
func (d *Decoder) compact() {
	if d.pos == 0 {
		return
	}
	if d.pos >= len(d.buf.data) {
		d.base += int64(d.pos)
		d.buf.data = d.buf.data[:0]
		d.pos = 0
		return
	}
	if d.pos*2 < cap(d.buf.data) {
		return
	}
	n := copy(d.buf.data, d.buf.data[d.pos:])
	d.buf.data = d.buf.data[:n]
	d.base += int64(d.pos)
	d.pos = 0
}

// advance moves past n bytes that may contain line breaks. CR LF counts as
// one line break, including across reads.
func (d *Decoder) advance(n int) {
	if !d.opts.trackLineColumn {
		d.pos += n
		return
	}
	for _, b := range d.buf.data[d.pos : d.pos+n] {
		switch b {
		case '\n':
			if d.pendingCR {
				d.pendingCR = false
				continue
			}
			d.line++
			d.column = 1
		case '\r':
			d.pendingCR = true
			d.line++
			d.column = 1
		default:
			d.pendingCR = false
			if b < utf8.RuneSelf || utf8.RuneStart(b) {
				d.column++
			}
		}
	}
	d.pos += n
}

// advanceRaw moves past n bytes known to hold no line breaks.
func (d *Decoder) advanceRaw(n int) {
	if d.opts.trackLineColumn {
		d.pendingCR = false
		d.column += utf8.RuneCount(d.buf.data[d.pos : d.pos+n])
	}
	d.pos += n
}

type declAttr struct {
	name  string
	value string
}

// parseDecl reads the pseudo-attributes of an XML declaration body. ok is
// false unless the body is version, then optional encoding, then optional
// standalone, with valid values.
func parseDecl(data []byte) ([]declAttr, bool) {
	var attrs []declAttr
	ok := true
	for {
		trimmed := bytes.TrimLeft(data, " \t\r\n")
		if len(trimmed) == 0 {
			break
		}
		if len(attrs) > 0 && len(trimmed) == len(data) {
			ok = false
		}
		data = trimmed
		eq := bytes.IndexByte(data, '=')
		if eq <= 0 {
			return attrs, false
		}
		name := string(bytes.TrimRight(data[:eq], " \t\r\n"))
		data = bytes.TrimLeft(data[eq+1:], " \t\r\n")
		if len(data) == 0 || (data[0] != '"' && data[0] != '\'') {
			return attrs, false
		}
		closing := bytes.IndexByte(data[1:], data[0])
		if closing < 0 {
			return attrs, false
		}
		attrs = append(attrs, declAttr{name: name, value: string(data[1 : closing+1])})
		data = data[closing+2:]
	}
	return attrs, ok && validDeclAttrs(attrs)
}

func validDeclAttrs(attrs []declAttr) bool {
	order := []string{"version", "encoding", "standalone"}
	next := 0
	for i, attr := range attrs {
		idx := -1
		for j := next; j < len(order); j++ {
			if attr.name == order[j] {
				idx = j
				break
			}
		}
		if idx < 0 || (i == 0 && idx != 0) {
			return false
		}
		next = idx + 1
		switch attr.name {
		case "version":
			if !validVersion(attr.value) {
				return false
			}
		case "encoding":
			if !validEncodingName(attr.value) {
				return false
			}
		case "standalone":
			if attr.value != "yes" && attr.value != "no" {
				return false
			}
		}
	}
	return len(attrs) > 0
}

func validVersion(v string) bool {
	if len(v) < 3 || v[0] != '1' || v[1] != '.' {
		return false
	}
	for i := 2; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

func validEncodingName(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		b := v[i]
		alpha := (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
		if i == 0 && !alpha {
			return false
		}
		if !alpha && (b < '0' || b > '9') && b != '.' && b != '_' && b != '-' {
			return false
		}
	}
	return true
}
