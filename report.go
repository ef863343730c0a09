package xmlhub

import (
	"time"

	"github.com/jacoelho/xmlhub/internal/dispatch"
)

// Stats counts what happened while dispatching one document.
type Stats struct {
	// FramesPushed and FramesPopped count handler scopes created from the
	// registry; they are equal after a successful document.
	FramesPushed int
	FramesPopped int
	Elements     int
	Texts        int
	MaxStack     int
	MaxDepth     int
}

// Report describes one Process call.
type Report struct {
	ID       string
	Source   string
	Err      error
	Stats    Stats
	Duration time.Duration
}

// OK reports whether the document was dispatched without error.
func (r Report) OK() bool {
	return r.Err == nil
}

// Observer is notified after each document, successful or not.
// Implementations must be safe for concurrent use when a hub is shared.
type Observer interface {
	DocumentProcessed(Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

// DocumentProcessed calls f.
func (f ObserverFunc) DocumentProcessed(r Report) {
	f(r)
}

func statsFrom(s dispatch.Stats) Stats {
	return Stats{
		FramesPushed: s.Pushed,
		FramesPopped: s.Popped,
		Elements:     s.Elements,
		Texts:        s.Texts,
		MaxStack:     s.MaxStack,
		MaxDepth:     s.MaxDepth,
	}
}
