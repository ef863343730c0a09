package handlers

import (
	"sync"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

// CallKind identifies a recorded handler callback.
type CallKind int

const (
	CallStart CallKind = iota
	CallEnd
	CallText
)

// String returns the callback name.
func (k CallKind) String() string {
	switch k {
	case CallStart:
		return "start"
	case CallEnd:
		return "end"
	case CallText:
		return "text"
	default:
		return "unknown"
	}
}

// Call is one recorded callback. Handler numbers recorder instances in the
// order the journal created them, starting at 1.
type Call struct {
	Kind    CallKind
	Handler int
	Name    string
	Attrs   xmlevent.Attributes
	Text    string
}

// Journal collects the calls of every recorder it created.
type Journal struct {
	mu      sync.Mutex
	calls   []Call
	created int
}

// Calls returns a copy of the recorded calls in arrival order.
func (j *Journal) Calls() []Call {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Call, len(j.calls))
	copy(out, j.calls)
	return out
}

// Created returns the number of recorders created.
func (j *Journal) Created() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.created
}

// Reset drops recorded calls and restarts handler numbering.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = nil
	j.created = 0
}

func (j *Journal) record(c Call) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, c)
}

func (j *Journal) next() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created++
	return j.created
}

// Recorder appends every callback it receives to a journal.
type Recorder struct {
	journal *Journal
	id      int
}

// RecorderFactory returns a factory whose recorders share j.
func RecorderFactory(j *Journal) xmlhub.Factory {
	return func() xmlhub.Handler {
		return &Recorder{journal: j, id: j.next()}
	}
}

func (r *Recorder) StartElement(name string, attrs xmlevent.Attributes) error {
	r.journal.record(Call{Kind: CallStart, Handler: r.id, Name: name, Attrs: attrs.Clone()})
	return nil
}

func (r *Recorder) EndElement(name string) error {
	r.journal.record(Call{Kind: CallEnd, Handler: r.id, Name: name})
	return nil
}

func (r *Recorder) Text(value string) error {
	r.journal.record(Call{Kind: CallText, Handler: r.id, Text: value})
	return nil
}
