package handlers

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Lines writes newline-terminated records to a single writer.
type Lines struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

// NewLines returns a sink writing to w. A nil writer discards records.
func NewLines(w io.Writer) *Lines {
	if w == nil {
		w = io.Discard
	}
	return &Lines{w: w}
}

// WriteLine writes s followed by a newline. Embedded newlines are kept, so
// callers emitting JSON should produce compact documents.
func (l *Lines) WriteLine(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	if _, err := io.WriteString(l.w, s); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	l.n++
	return nil
}

// Count returns the number of records written.
func (l *Lines) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}
