package xmlhub_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/xmlhub"
	xherrors "github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// factory numbers each handler it creates so tests can tell instances apart.
func (j *journal) factory(tag string) xmlhub.Factory {
	n := 0
	return func() xmlhub.Handler {
		n++
		id := fmt.Sprintf("%s#%d", tag, n)
		return xmlhub.HandlerFuncs{
			OnStart: func(name string, attrs xmlevent.Attributes) error {
				if attrs.Len() > 0 {
					j.add("%s start %s %v", id, name, attrs.Names())
					return nil
				}
				j.add("%s start %s", id, name)
				return nil
			},
			OnEnd: func(name string) error {
				j.add("%s end %s", id, name)
				return nil
			},
			OnText: func(value string) error {
				j.add("%s text %q", id, value)
				return nil
			},
		}
	}
}

func newHub(t *testing.T, reg *xmlhub.Registry, opts ...xmlhub.Option) *xmlhub.Hub {
	t.Helper()
	hub, err := xmlhub.New(reg, opts...)
	require.NoError(t, err)
	return hub
}

func process(t *testing.T, hub *xmlhub.Hub, doc string) error {
	t.Helper()
	return hub.Process(context.Background(), strings.NewReader(doc))
}

func TestProcessWithEmptyRegistry(t *testing.T) {
	hub := newHub(t, xmlhub.NewRegistry())

	report, err := hub.ProcessReport(context.Background(), strings.NewReader(`<a x="1"><b>text</b><c/></a>`))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 3, report.Stats.Elements)
	assert.Equal(t, 1, report.Stats.Texts)
	assert.Zero(t, report.Stats.FramesPushed)
	assert.Equal(t, 2, report.Stats.MaxDepth)
}

func TestProcessScopeOwnership(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("item", j.factory("item")))
	hub := newHub(t, reg)

	doc := `<list>
  <item id="1"><name>x</name><extra/></item>
  <item id="2"/>
</list>`
	require.NoError(t, process(t, hub, doc))

	assert.Equal(t, []string{
		"item#1 start item [id]",
		"item#1 start name",
		`item#1 text "x"`,
		"item#1 start extra",
		"item#1 end item",
		"item#2 start item [id]",
		"item#2 end item",
	}, j.lines())
}

func TestProcessRecursiveElements(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("node", j.factory("node")))
	hub := newHub(t, reg)

	report, err := hub.ProcessReport(context.Background(), strings.NewReader(`<node><node><leaf/></node></node>`))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"node#1 start node",
		"node#2 start node",
		"node#2 start leaf",
		"node#2 end node",
		"node#1 end node",
	}, j.lines())
	assert.Equal(t, 2, report.Stats.FramesPushed)
	assert.Equal(t, 2, report.Stats.FramesPopped)
	assert.Equal(t, 3, report.Stats.MaxStack)
}

func TestProcessSelfClosingEquivalence(t *testing.T) {
	run := func(doc string) []string {
		var j journal
		reg := xmlhub.NewRegistry()
		require.NoError(t, reg.Register("b", j.factory("b")))
		require.NoError(t, process(t, newHub(t, reg), doc))
		return j.lines()
	}

	assert.Equal(t, run(`<a><b x="1"></b></a>`), run(`<a><b x="1"/></a>`))
}

func TestProcessRegisteredRoot(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("doc", j.factory("doc")))
	hub := newHub(t, reg)

	require.NoError(t, process(t, hub, `<?xml version="1.0"?><!-- c --><doc><p>hi</p></doc>`))
	assert.Equal(t, []string{
		"doc#1 start doc",
		"doc#1 start p",
		`doc#1 text "hi"`,
		"doc#1 end doc",
	}, j.lines())
}

func TestProcessQualifiedNamesAreLiteral(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("ns:item", j.factory("ns")))
	hub := newHub(t, reg)

	require.NoError(t, process(t, hub, `<root xmlns:ns="urn:x" xmlns:other="urn:x"><ns:item/><other:item/><item/></root>`))
	assert.Equal(t, []string{
		"ns#1 start ns:item",
		"ns#1 end ns:item",
	}, j.lines())
}

func TestProcessKeepWhitespace(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("a", j.factory("a")))

	require.NoError(t, process(t, newHub(t, reg, xmlhub.WithKeepWhitespace(true)), "<a> <b/></a>"))
	assert.Equal(t, []string{
		"a#1 start a",
		`a#1 text " "`,
		"a#1 start b",
		"a#1 end a",
	}, j.lines())
}

func TestProcessMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code xherrors.ErrorCode
	}{
		{name: "stray end", doc: `</a>`, code: xherrors.ErrUnbalancedEnd},
		{name: "end after root", doc: `<a></a></a>`, code: xherrors.ErrUnbalancedEnd},
		{name: "mismatched end", doc: `<a><b></a>`, code: xherrors.ErrUnbalancedEnd},
		{name: "unclosed", doc: `<a><b>`, code: xherrors.ErrUnclosedElement},
		{name: "empty", doc: ``, code: xherrors.ErrNoRoot},
		{name: "comment only", doc: `<!-- nothing -->`, code: xherrors.ErrNoRoot},
		{name: "second root", doc: `<a/><b/>`, code: xherrors.ErrContentOutsideRoot},
		{name: "text before root", doc: `hello<a/>`, code: xherrors.ErrContentOutsideRoot},
		{name: "syntax", doc: `<a><</a>`, code: xherrors.ErrXMLSyntax},
		{name: "duplicate attribute", doc: `<a x="1" x="2"/>`, code: xherrors.ErrDuplicateAttribute},
		{name: "undeclared encoding", doc: `<?xml version="1.0" encoding="ISO-8859-1"?><a/>`, code: xherrors.ErrUnsupportedEncoding},
		{name: "bad declaration", doc: `<?xml encoding="UTF-8"?><a/>`, code: xherrors.ErrXMLSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newHub(t, xmlhub.NewRegistry())
			err := process(t, hub, tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.code)
			assert.True(t, xherrors.IsMalformedInput(err))
		})
	}
}

func TestProcessUnbalancedEndWithRegisteredElements(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("a", j.factory("a")))

	err := process(t, newHub(t, reg), `<a></a></a>`)
	require.ErrorIs(t, err, xherrors.ErrUnbalancedEnd)

	e, ok := xherrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "a", e.Element)
	assert.True(t, e.HasPosition())
	assert.Equal(t, []string{"a#1 start a", "a#1 end a"}, j.lines())
}

func TestProcessErrorCarriesPosition(t *testing.T) {
	hub := newHub(t, xmlhub.NewRegistry())

	err := process(t, hub, "<a>\n  <b/>\n</a>\n<c/>")
	e, ok := xherrors.As(err)
	require.True(t, ok)
	assert.Equal(t, xherrors.ErrContentOutsideRoot, e.Code)
	assert.Equal(t, 4, e.Line)
	assert.Equal(t, 1, e.Column)
}

func TestProcessHandlerErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var texts []string
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("b", func() xmlhub.Handler {
		return xmlhub.HandlerFuncs{
			OnText: func(value string) error {
				texts = append(texts, value)
				return boom
			},
		}
	}))

	err := process(t, newHub(t, reg), `<a><b>one</b><b>two</b></a>`)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, xherrors.ErrHandlerFailed)
	assert.True(t, xherrors.IsHandlerFailure(err))
	assert.Equal(t, []string{"one"}, texts)
}

func TestProcessFactoryReturningNil(t *testing.T) {
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("b", func() xmlhub.Handler { return nil }))

	err := process(t, newHub(t, reg), `<a><b/></a>`)
	require.ErrorIs(t, err, xherrors.ErrInvalidHandler)
	assert.True(t, xherrors.IsConfiguration(err))
}

type pointerHandler struct{ xmlhub.NullHandler }

func TestProcessFactoryFailures(t *testing.T) {
	tests := []struct {
		name    string
		factory xmlhub.Factory
		want    string
	}{
		{name: "typed nil", factory: func() xmlhub.Handler {
			var h *pointerHandler
			return h
		}, want: "nil handler"},
		{name: "panic", factory: func() xmlhub.Handler { panic("factory exploded") }, want: "factory exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := xmlhub.NewRegistry()
			require.NoError(t, reg.Register("b", tt.factory))

			err := process(t, newHub(t, reg), `<a><b/></a>`)
			require.ErrorIs(t, err, xherrors.ErrInvalidHandler)
			assert.True(t, xherrors.IsConfiguration(err))
			assert.ErrorContains(t, err, tt.want)

			// the registry is released even though the document failed
			require.NoError(t, reg.Register("c", nullFactory))
		})
	}
}

func TestProcessHandlerPanicAborts(t *testing.T) {
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("b", func() xmlhub.Handler {
		return xmlhub.HandlerFuncs{OnText: func(string) error { panic("text exploded") }}
	}))

	err := process(t, newHub(t, reg), `<a><b>x</b></a>`)
	require.ErrorIs(t, err, xherrors.ErrHandlerFailed)
	assert.True(t, xherrors.IsHandlerFailure(err))
	assert.ErrorContains(t, err, "text exploded")

	e, ok := xherrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "b", e.Element)
	assert.True(t, e.HasPosition())
}

func TestProcessDeepNesting(t *testing.T) {
	const depth = 50000
	var b strings.Builder
	for range depth {
		b.WriteString("<n>")
	}
	for range depth {
		b.WriteString("</n>")
	}

	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("n", func() xmlhub.Handler { return xmlhub.NullHandler{} }))
	hub := newHub(t, reg)

	report, err := hub.ProcessReport(context.Background(), strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, depth, report.Stats.MaxDepth)
	assert.Equal(t, depth, report.Stats.FramesPushed)
	assert.Equal(t, depth, report.Stats.FramesPopped)
}

func TestProcessLimits(t *testing.T) {
	hub := newHub(t, xmlhub.NewRegistry(), xmlhub.WithMaxDepth(2), xmlhub.WithMaxAttrs(1), xmlhub.WithMaxTokenSize(12))

	require.NoError(t, process(t, hub, `<a x="1"><b>abcdefghijkl</b></a>`))
	assert.ErrorIs(t, process(t, hub, `<a><b><c/></b></a>`), xherrors.ErrLimitExceeded)
	assert.ErrorIs(t, process(t, hub, `<a x="1" y="2"/>`), xherrors.ErrLimitExceeded)
	assert.ErrorIs(t, process(t, hub, `<a>abcdefghijklm</a>`), xherrors.ErrLimitExceeded)
	assert.ErrorIs(t, process(t, hub, `<a xyz="0123456789"/>`), xherrors.ErrLimitExceeded)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestProcessRejectsOversizedTextBeforeBuffering(t *testing.T) {
	const textSize = 1 << 20
	hub := newHub(t, xmlhub.NewRegistry(), xmlhub.WithMaxTokenSize(16))
	input := &countingReader{r: io.MultiReader(
		strings.NewReader("<a>"),
		strings.NewReader(strings.Repeat("x", textSize)),
		strings.NewReader("</a>"),
	)}

	err := hub.Process(context.Background(), input)
	require.ErrorIs(t, err, xherrors.ErrLimitExceeded)

	e, ok := xherrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 1, e.Line)
	assert.Less(t, input.n, int64(textSize/4), "decoder read %d bytes before rejecting", input.n)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := xmlhub.New(nil)
	require.ErrorIs(t, err, xherrors.ErrNilRegistry)

	_, err = xmlhub.New(xmlhub.NewRegistry(), xmlhub.WithMaxDepth(-1))
	require.Error(t, err)
}

func TestProcessEntities(t *testing.T) {
	var got []string
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("a", func() xmlhub.Handler {
		return xmlhub.HandlerFuncs{OnText: func(v string) error {
			got = append(got, v)
			return nil
		}}
	}))
	hub := newHub(t, reg, xmlhub.WithEntities(map[string]string{"who": "world"}))

	require.NoError(t, process(t, hub, `<a>hello &who;</a>`))
	assert.Equal(t, "hello world", strings.Join(got, ""))
}

func TestProcessContextCanceled(t *testing.T) {
	hub := newHub(t, xmlhub.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Process(ctx, strings.NewReader(`<a/>`))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessNilInputs(t *testing.T) {
	hub := newHub(t, xmlhub.NewRegistry())

	assert.ErrorIs(t, hub.Process(context.Background(), nil), xherrors.ErrNilSource)
	assert.ErrorIs(t, hub.ProcessSource(context.Background(), nil), xherrors.ErrNilSource)

	var nilHub *xmlhub.Hub
	assert.ErrorIs(t, nilHub.Process(context.Background(), strings.NewReader(`<a/>`)), xherrors.ErrNilRegistry)
}

func TestProcessFile(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("b", j.factory("b")))
	hub := newHub(t, reg)

	path := filepath.Join(t.TempDir(), "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<a><b>1</b></a>`), 0o600))

	require.NoError(t, hub.ProcessFile(context.Background(), path))
	assert.Equal(t, []string{"b#1 start b", `b#1 text "1"`, "b#1 end b"}, j.lines())

	err := hub.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type sliceSource struct {
	events []xmlevent.Event
}

func (s *sliceSource) Next() (xmlevent.Event, error) {
	if len(s.events) == 0 {
		return xmlevent.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func TestProcessSource(t *testing.T) {
	var j journal
	reg := xmlhub.NewRegistry()
	require.NoError(t, reg.Register("b", j.factory("b")))
	hub := newHub(t, reg)

	src := &sliceSource{events: []xmlevent.Event{
		{Kind: xmlevent.EventStartElement, Name: "a"},
		{Kind: xmlevent.EventStartElement, Name: "b", SelfClosing: true},
		{Kind: xmlevent.EventEndElement, Name: "a"},
	}}
	require.NoError(t, hub.ProcessSource(context.Background(), src))
	assert.Equal(t, []string{"b#1 start b", "b#1 end b"}, j.lines())
}

func TestObserverSeesEveryDocument(t *testing.T) {
	var reports []xmlhub.Report
	hub := newHub(t, xmlhub.NewRegistry(), xmlhub.WithObserver(xmlhub.ObserverFunc(func(r xmlhub.Report) {
		reports = append(reports, r)
	})))

	require.NoError(t, process(t, hub, `<a/>`))
	require.Error(t, process(t, hub, `<a>`))

	require.Len(t, reports, 2)
	assert.True(t, reports[0].OK())
	assert.False(t, reports[1].OK())
	assert.NotEqual(t, reports[0].ID, reports[1].ID)
}
