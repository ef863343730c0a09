package dispatch

import (
	"errors"
	"fmt"
	"io"
	"strings"

	xherrors "github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

// Handler receives the events routed to one handler scope.
type Handler interface {
	StartElement(name string, attrs xmlevent.Attributes) error
	EndElement(name string) error
	Text(value string) error
}

// Resolver looks up handlers for element names.
// Create returns a nil handler and nil error when name is not registered.
type Resolver interface {
	Contains(name string) bool
	Create(name string) (Handler, error)
}

// Frame is one handler scope on the dispatch stack.
// Open counts the scope's own element plus nested elements that did not
// get a handler of their own and are still open.
type Frame struct {
	Handler Handler
	Owner   string
	Open    int
}

// Stats summarizes one dispatched document.
type Stats struct {
	Pushed   int
	Popped   int
	Elements int
	Texts    int
	MaxStack int
	MaxDepth int
}

// Dispatcher routes events for a single document. It is not safe for
// concurrent use and must not be reused across documents.
type Dispatcher struct {
	resolver   Resolver
	stack      []Frame
	stats      Stats
	depth      int
	rootSeen   bool
	rootClosed bool
}

// New returns a dispatcher whose stack is seeded with root.
func New(resolver Resolver, root Handler) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		stack:    make([]Frame, 1, 16),
	}
	d.stack[0] = Frame{Handler: root}
	d.stats.MaxStack = 1
	return d
}

// Start routes a start element. A self-closing element is ended immediately.
func (d *Dispatcher) Start(name string, attrs xmlevent.Attributes, selfClosing bool) error {
	if d.rootClosed || len(d.stack) == 0 {
		return &xherrors.Error{
			Code:    xherrors.ErrContentOutsideRoot,
			Message: "element after the root element closed",
			Element: name,
		}
	}
	if d.resolver != nil && d.resolver.Contains(name) {
		h, err := d.create(name)
		if err != nil {
			return fmt.Errorf("create handler for <%s>: %w", name, err)
		}
		if h == nil {
			return &xherrors.Error{
				Code:    xherrors.ErrInvalidHandler,
				Message: "registered factory produced no handler",
				Element: name,
			}
		}
		d.push(Frame{Handler: h, Owner: name})
	}

	top := &d.stack[len(d.stack)-1]
	top.Open++
	d.depth++
	d.rootSeen = true
	d.stats.Elements++
	d.stats.MaxDepth = max(d.stats.MaxDepth, d.depth)

	if err := callStart(top.Handler, name, attrs); err != nil {
		return handlerError(err, name, "start")
	}
	if selfClosing {
		return d.End(name)
	}
	return nil
}

// End routes an end element. Only the end that brings a frame's counter to
// zero reaches a handler, and it reaches the handler being popped.
func (d *Dispatcher) End(name string) error {
	if d.depth == 0 || len(d.stack) == 0 {
		return &xherrors.Error{
			Code:    xherrors.ErrUnbalancedEnd,
			Message: "end tag without an open element",
			Element: name,
		}
	}
	top := &d.stack[len(d.stack)-1]
	top.Open--
	d.depth--
	if d.depth == 0 {
		d.rootClosed = true
	}
	if top.Open > 0 {
		return nil
	}

	frame := d.pop()
	if err := callEnd(frame.Handler, name); err != nil {
		return handlerError(err, name, "end")
	}
	return nil
}

// Text routes character data to the innermost handler scope.
// Whitespace outside the root element is ignored.
func (d *Dispatcher) Text(value string) error {
	if !d.rootSeen || d.rootClosed || len(d.stack) == 0 {
		if strings.TrimLeft(value, " \t\r\n") == "" {
			return nil
		}
		return &xherrors.Error{
			Code:    xherrors.ErrContentOutsideRoot,
			Message: "text outside the root element",
		}
	}
	d.stats.Texts++
	if err := callText(d.stack[len(d.stack)-1].Handler, value); err != nil {
		return handlerError(err, d.stack[len(d.stack)-1].Owner, "text")
	}
	return nil
}

// Finish checks the end-of-input state. The stack must be empty, or hold
// only the root frame with no open elements.
func (d *Dispatcher) Finish() error {
	if !d.rootSeen {
		return xherrors.New(xherrors.ErrNoRoot, "document has no root element")
	}
	if d.depth > 0 {
		e := xherrors.Newf(xherrors.ErrUnclosedElement, "%d element(s) still open at end of document", d.depth)
		if n := len(d.stack); n > 0 {
			e.Element = d.stack[n-1].Owner
		}
		return e
	}
	if len(d.stack) > 1 || d.stats.Pushed != d.stats.Popped {
		return xherrors.Newf(xherrors.ErrUnclosedElement, "%d handler scope(s) still open at end of document", len(d.stack)-1)
	}
	return nil
}

// Abort releases the frames left on the stack after a failed document.
// Handlers implementing io.Closer are closed innermost first; no further
// callbacks are made. The dispatcher is empty afterwards.
func (d *Dispatcher) Abort() error {
	var errs []error
	for len(d.stack) > 0 {
		n := len(d.stack) - 1
		f := d.stack[n]
		d.stack[n] = Frame{}
		d.stack = d.stack[:n]
		if c, ok := f.Handler.(io.Closer); ok {
			if err := closeHandler(c); err != nil {
				errs = append(errs, fmt.Errorf("close handler for <%s>: %w", f.Owner, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Depth reports the number of open elements.
func (d *Dispatcher) Depth() int {
	return d.depth
}

// Len reports the number of frames on the stack, including the root frame
// while it is live.
func (d *Dispatcher) Len() int {
	return len(d.stack)
}

// Top returns the innermost frame.
func (d *Dispatcher) Top() (Frame, bool) {
	if len(d.stack) == 0 {
		return Frame{}, false
	}
	return d.stack[len(d.stack)-1], true
}

// Stats returns the counters collected so far.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

func (d *Dispatcher) push(f Frame) {
	d.stack = append(d.stack, f)
	d.stats.Pushed++
	d.stats.MaxStack = max(d.stats.MaxStack, len(d.stack))
}

func (d *Dispatcher) pop() Frame {
	n := len(d.stack) - 1
	f := d.stack[n]
	d.stack[n] = Frame{}
	d.stack = d.stack[:n]
	if n > 0 {
		d.stats.Popped++
	}
	return f
}

func (d *Dispatcher) create(name string) (h Handler, err error) {
	defer func() {
		if p := recover(); p != nil {
			h = nil
			err = &xherrors.Error{
				Code:    xherrors.ErrInvalidHandler,
				Message: fmt.Sprintf("factory panicked: %v", p),
				Element: name,
			}
		}
	}()
	return d.resolver.Create(name)
}

// errHandlerPanic marks a callback that panicked instead of returning.
var errHandlerPanic = errors.New("handler panicked")

func recovered(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("%w: %v", errHandlerPanic, p)
	}
}

func callStart(h Handler, name string, attrs xmlevent.Attributes) (err error) {
	defer recovered(&err)
	return h.StartElement(name, attrs)
}

func callEnd(h Handler, name string) (err error) {
	defer recovered(&err)
	return h.EndElement(name)
}

func callText(h Handler, value string) (err error) {
	defer recovered(&err)
	return h.Text(value)
}

func closeHandler(c io.Closer) (err error) {
	defer recovered(&err)
	return c.Close()
}

func handlerError(err error, element, callback string) error {
	return &xherrors.Error{
		Code:    xherrors.ErrHandlerFailed,
		Message: callback + " callback failed",
		Element: element,
		Err:     err,
	}
}
