package xmlhub

import (
	"cmp"
	"fmt"

	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

const (
	defaultXMLMaxDepth     = 1 << 16
	defaultXMLMaxAttrs     = 256
	defaultXMLMaxTokenSize = 4 << 20
)

type xmlParseLimits struct {
	maxDepth     int
	maxAttrs     int
	maxTokenSize int
}

func resolveXMLParseLimits(maxDepth, maxAttrs, maxTokenSize int) (xmlParseLimits, error) {
	if maxDepth < 0 {
		return xmlParseLimits{}, fmt.Errorf("xml max depth must be >= 0")
	}
	if maxAttrs < 0 {
		return xmlParseLimits{}, fmt.Errorf("xml max attrs must be >= 0")
	}
	if maxTokenSize < 0 {
		return xmlParseLimits{}, fmt.Errorf("xml max token size must be >= 0")
	}
	return xmlParseLimits{
		maxDepth:     defaultXMLLimit(maxDepth, defaultXMLMaxDepth),
		maxAttrs:     defaultXMLLimit(maxAttrs, defaultXMLMaxAttrs),
		maxTokenSize: defaultXMLLimit(maxTokenSize, defaultXMLMaxTokenSize),
	}, nil
}

func (l xmlParseLimits) options() []xmlevent.Options {
	return []xmlevent.Options{
		xmlevent.MaxDepth(l.maxDepth),
		xmlevent.MaxAttrs(l.maxAttrs),
		xmlevent.MaxTokenSize(l.maxTokenSize),
	}
}

func defaultXMLLimit(value, fallback int) int {
	return cmp.Or(value, fallback)
}
