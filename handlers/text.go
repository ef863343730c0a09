package handlers

import (
	"strings"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

// TextCollector concatenates the text of its scope and hands it to a
// callback when the scope closes.
type TextCollector struct {
	deliver func(owner, text string) error
	owner   string
	buf     strings.Builder
}

// TextCollectorFactory returns a factory delivering each scope's text to fn.
func TextCollectorFactory(fn func(owner, text string) error) xmlhub.Factory {
	return func() xmlhub.Handler {
		return &TextCollector{deliver: fn}
	}
}

func (c *TextCollector) StartElement(name string, _ xmlevent.Attributes) error {
	if c.owner == "" {
		c.owner = name
	}
	return nil
}

func (c *TextCollector) Text(value string) error {
	c.buf.WriteString(value)
	return nil
}

func (c *TextCollector) EndElement(string) error {
	if c.deliver == nil {
		return nil
	}
	return c.deliver(c.owner, c.buf.String())
}
