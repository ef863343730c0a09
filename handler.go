package xmlhub

//go:generate mockgen -source=handler.go -destination=internal/mocks/handler.go -package=mocks

import "github.com/jacoelho/xmlhub/pkg/xmlevent"

// Handler receives the events of one handler scope: its own element, plus
// the start tags and text of descendants that have no handler of their own.
// EndElement is called exactly once, for the handler's own closing tag.
// Returning an error aborts the document.
type Handler interface {
	StartElement(name string, attrs xmlevent.Attributes) error
	EndElement(name string) error
	Text(value string) error
}

// Factory creates a fresh handler for each matching element.
type Factory func() Handler

// NullHandler ignores every event. It owns the root scope of each document.
type NullHandler struct{}

func (NullHandler) StartElement(string, xmlevent.Attributes) error { return nil }
func (NullHandler) EndElement(string) error                        { return nil }
func (NullHandler) Text(string) error                              { return nil }

// HandlerFuncs adapts plain functions to Handler. Nil fields ignore the event.
type HandlerFuncs struct {
	OnStart func(name string, attrs xmlevent.Attributes) error
	OnEnd   func(name string) error
	OnText  func(value string) error
}

// StartElement calls OnStart.
func (h HandlerFuncs) StartElement(name string, attrs xmlevent.Attributes) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(name, attrs)
}

// EndElement calls OnEnd.
func (h HandlerFuncs) EndElement(name string) error {
	if h.OnEnd == nil {
		return nil
	}
	return h.OnEnd(name)
}

// Text calls OnText.
func (h HandlerFuncs) Text(value string) error {
	if h.OnText == nil {
		return nil
	}
	return h.OnText(value)
}
