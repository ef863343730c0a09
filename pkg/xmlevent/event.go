package xmlevent

import "slices"

// EventKind identifies the kind of streaming XML event.
type EventKind int

const (
	EventStartElement EventKind = iota
	EventEndElement
	EventText
)

// String returns a stable name for the kind, suitable for debugging.
func (k EventKind) String() string {
	switch k {
	case EventStartElement:
		return "StartElement"
	case EventEndElement:
		return "EndElement"
	case EventText:
		return "Text"
	default:
		return "Unknown"
	}
}

// Event is a single routed XML event.
// Name is the literal qualified name as written in the document.
// A self-closing element produces one start event with SelfClosing set and
// no matching end event.
type Event struct {
	Name        string
	Text        string
	Attrs       Attributes
	Kind        EventKind
	Line        int
	Column      int
	SelfClosing bool
}

// Source produces events in document order and returns io.EOF once the
// input is exhausted.
type Source interface {
	Next() (Event, error)
}

// Attr is a single attribute with its literal qualified name.
type Attr struct {
	Name  string
	Value string
}

// Attributes is an ordered attribute list with unique names.
type Attributes []Attr

// Len returns the number of attributes.
func (a Attributes) Len() int {
	return len(a)
}

// Get returns the value of the named attribute.
func (a Attributes) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Value returns the value of the named attribute or "" when absent.
func (a Attributes) Value(name string) string {
	v, _ := a.Get(name)
	return v
}

// Names returns the attribute names in document order.
func (a Attributes) Names() []string {
	if len(a) == 0 {
		return nil
	}
	names := make([]string, len(a))
	for i, attr := range a {
		names[i] = attr.Name
	}
	return names
}

// Map returns the attributes as a map.
func (a Attributes) Map() map[string]string {
	out := make(map[string]string, len(a))
	for _, attr := range a {
		out[attr.Name] = attr.Value
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (a Attributes) Clone() Attributes {
	return slices.Clone(a)
}
