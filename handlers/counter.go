package handlers

import (
	"maps"
	"sync"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

// Tally aggregates element counts from every counter scope.
type Tally struct {
	mu     sync.Mutex
	counts map[string]int
	scopes int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Counts returns a snapshot of start tags seen per element name.
func (t *Tally) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.counts)
}

// Scopes returns the number of counter scopes that completed.
func (t *Tally) Scopes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scopes
}

func (t *Tally) merge(local map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[string]int, len(local))
	}
	for name, n := range local {
		t.counts[name] += n
	}
	t.scopes++
}

// Counter counts the start tags of its scope and adds them to a tally when
// the scope closes. Scopes aborted by an error are not counted.
type Counter struct {
	tally *Tally
	local map[string]int
}

// CounterFactory returns a factory whose counters report to t.
func CounterFactory(t *Tally) xmlhub.Factory {
	return func() xmlhub.Handler {
		return &Counter{tally: t, local: make(map[string]int)}
	}
}

func (c *Counter) StartElement(name string, _ xmlevent.Attributes) error {
	c.local[name]++
	return nil
}

func (c *Counter) EndElement(string) error {
	c.tally.merge(c.local)
	return nil
}

func (c *Counter) Text(string) error { return nil }
