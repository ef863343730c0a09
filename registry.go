package xmlhub

import (
	"reflect"
	"slices"
	"sync"

	xherrors "github.com/jacoelho/xmlhub/errors"
	"github.com/jacoelho/xmlhub/internal/dispatch"
)

// Registry maps element names to handler factories.
//
// A registry is meant to be populated before documents are processed.
// Register and Unregister never wait: they fail with errors.ErrRegistryBusy
// whenever the registry is held by anyone else. That covers every running
// Process call, and also a Contains, Identifiers or Len call that happens to
// be in flight on another goroutine, or a concurrent Register/Unregister.
// Callers that mutate a shared registry must be prepared to retry. Lookups
// are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register records factory under identifier. Empty identifiers, nil
// factories and identifiers that are already registered are rejected;
// call Unregister first to replace a binding. It returns
// errors.ErrRegistryBusy while any other goroutine holds the registry.
func (r *Registry) Register(identifier string, factory Factory) error {
	if identifier == "" {
		return xherrors.New(xherrors.ErrEmptyIdentifier, "element name is required")
	}
	if factory == nil {
		return &xherrors.Error{
			Code:    xherrors.ErrNilFactory,
			Message: "handler factory is required",
			Element: identifier,
		}
	}
	if !r.mu.TryLock() {
		return busyError(identifier)
	}
	defer r.mu.Unlock()

	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	if _, exists := r.factories[identifier]; exists {
		return &xherrors.Error{
			Code:    xherrors.ErrDuplicateIdentifier,
			Message: "element already has a handler",
			Element: identifier,
		}
	}
	r.factories[identifier] = factory
	return nil
}

// Unregister removes the binding for identifier and reports whether one
// existed. Like Register it returns errors.ErrRegistryBusy instead of
// waiting for concurrent readers or a running Process call.
func (r *Registry) Unregister(identifier string) (bool, error) {
	if !r.mu.TryLock() {
		return false, busyError(identifier)
	}
	defer r.mu.Unlock()

	if _, exists := r.factories[identifier]; !exists {
		return false, nil
	}
	delete(r.factories, identifier)
	return true, nil
}

// Contains reports whether identifier has a factory.
func (r *Registry) Contains(identifier string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contains(identifier)
}

// Create returns a fresh handler for identifier. An unregistered identifier
// yields a nil handler and a nil error; a factory returning nil is reported
// as errors.ErrInvalidHandler.
func (r *Registry) Create(identifier string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.create(identifier)
}

// Identifiers returns the registered element names in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered element names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

func (r *Registry) contains(identifier string) bool {
	_, ok := r.factories[identifier]
	return ok
}

func (r *Registry) create(identifier string) (Handler, error) {
	factory, ok := r.factories[identifier]
	if !ok {
		return nil, nil
	}
	h := factory()
	if isNilHandler(h) {
		return nil, &xherrors.Error{
			Code:    xherrors.ErrInvalidHandler,
			Message: "factory returned a nil handler",
			Element: identifier,
		}
	}
	return h, nil
}

// isNilHandler also catches typed nils such as a nil *T stored in the
// interface, whose methods would dereference nil.
func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// acquire pins the registry for one document; the returned resolver reads
// the map without further locking until release is called.
func (r *Registry) acquire() (dispatch.Resolver, func()) {
	r.mu.RLock()
	return lockedResolver{r: r}, r.mu.RUnlock
}

type lockedResolver struct {
	r *Registry
}

func (l lockedResolver) Contains(name string) bool {
	return l.r.contains(name)
}

func (l lockedResolver) Create(name string) (dispatch.Handler, error) {
	h, err := l.r.create(name)
	if h == nil {
		return nil, err
	}
	return h, err
}

func busyError(identifier string) error {
	return &xherrors.Error{
		Code:    xherrors.ErrRegistryBusy,
		Message: "registry is in use",
		Element: identifier,
	}
}
