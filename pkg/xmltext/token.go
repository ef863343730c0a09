package xmltext

// Kind identifies the syntactic kind of an XML token.
type Kind byte

const (
	KindNone Kind = iota
	KindStartElement
	KindEndElement
	KindCharData
	KindComment
	KindPI
	KindDirective
	KindCDATA
)

var kindNames = [...]string{
	KindNone:         "None",
	KindStartElement: "StartElement",
	KindEndElement:   "EndElement",
	KindCharData:     "CharData",
	KindComment:      "Comment",
	KindPI:           "PI",
	KindDirective:    "Directive",
	KindCDATA:        "CDATA",
}

// String returns a stable name for the kind, suitable for debugging.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Span references bytes held by the decoder. It is only valid until the
// next ReadToken call.
type Span struct {
	buf   *spanBuffer
	Start int
	End   int
}

// Len reports the span length in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// QNameSpan is a literal qualified name. Prefixes are never resolved
// against namespace declarations.
type QNameSpan struct {
	Full      Span
	Prefix    Span
	Local     Span
	HasPrefix bool
}

// AttrSpan is one attribute of a start element.
type AttrSpan struct {
	Name      QNameSpan
	ValueSpan Span
}

// Token is a view of the next XML token. Spans in a token are only valid
// until the next read call.
type Token struct {
	Kind      Kind
	Name      QNameSpan
	Attrs     []AttrSpan
	Text      Span
	Raw       Span
	Line      int
	Column    int
	IsXMLDecl bool
}

type spanBuffer struct {
	data []byte
}

func makeSpan(buf *spanBuffer, start, end int) Span {
	return Span{buf: buf, Start: start, End: end}
}

func makeQNameSpan(buf *spanBuffer, start, end, colon int) QNameSpan {
	full := makeSpan(buf, start, end)
	if colon < 0 {
		return QNameSpan{Full: full, Local: full}
	}
	return QNameSpan{
		Full:      full,
		Prefix:    makeSpan(buf, start, colon),
		Local:     makeSpan(buf, colon+1, end),
		HasPrefix: true,
	}
}

func (s Span) bytes() []byte {
	if s.buf == nil || s.Start < 0 || s.End < s.Start || s.End > len(s.buf.data) {
		return nil
	}
	return s.buf.data[s.Start:s.End]
}
