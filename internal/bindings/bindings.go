package bindings

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/handlers"
	"github.com/jacoelho/xmlhub/internal/config"
)

// Output collects what bound handlers produce for one run.
type Output struct {
	Lines *handlers.Lines
	Tally *handlers.Tally
}

// NewOutput returns an output writing records to w.
func NewOutput(w io.Writer) *Output {
	return &Output{Lines: handlers.NewLines(w), Tally: handlers.NewTally()}
}

// Loader builds registries from bindings. Lua scripts are compiled once and
// shared by every registry the loader builds.
type Loader struct {
	baseDir string

	mu      sync.Mutex
	scripts map[string]*handlers.LuaScript
}

// NewLoader returns a loader resolving relative script paths against baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir, scripts: make(map[string]*handlers.LuaScript)}
}

// Build registers one handler factory per binding, writing to out.
func (l *Loader) Build(bindings []config.Binding, out *Output) (*xmlhub.Registry, error) {
	if out == nil {
		out = NewOutput(nil)
	}
	reg := xmlhub.NewRegistry()
	for _, b := range bindings {
		factory, err := l.factory(b, out)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.Element, err)
		}
		if err := reg.Register(b.Element, factory); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.Element, err)
		}
	}
	return reg, nil
}

// Preload compiles every lua script named by bindings.
func (l *Loader) Preload(bindings []config.Binding) error {
	for _, b := range bindings {
		if b.Handler != config.KindLua {
			continue
		}
		if _, err := l.script(b.Script); err != nil {
			return fmt.Errorf("bind %s: %w", b.Element, err)
		}
	}
	return nil
}

func (l *Loader) factory(b config.Binding, out *Output) (xmlhub.Factory, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	switch b.Handler {
	case config.KindNull:
		return func() xmlhub.Handler { return xmlhub.NullHandler{} }, nil
	case config.KindJSON:
		return handlers.JSONFactory(out.Lines), nil
	case config.KindCount:
		return handlers.CounterFactory(out.Tally), nil
	case config.KindText:
		return handlers.TextCollectorFactory(func(owner, text string) error {
			return out.Lines.WriteLine(owner + "\t" + strings.TrimSpace(text))
		}), nil
	case config.KindLua:
		script, err := l.script(b.Script)
		if err != nil {
			return nil, err
		}
		return script.Factory(out.Lines), nil
	default:
		return nil, fmt.Errorf("unknown handler %q", b.Handler)
	}
}

func (l *Loader) script(path string) (*handlers.LuaScript, error) {
	if !filepath.IsAbs(path) && l.baseDir != "" {
		path = filepath.Join(l.baseDir, path)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.scripts[path]; ok {
		return s, nil
	}
	s, err := handlers.LoadLua(path)
	if err != nil {
		return nil, err
	}
	if l.scripts == nil {
		l.scripts = make(map[string]*handlers.LuaScript)
	}
	l.scripts[path] = s
	return s, nil
}

// HubOptions converts parse settings to hub options.
func HubOptions(p config.ParseConfig) []xmlhub.Option {
	opts := []xmlhub.Option{xmlhub.WithKeepWhitespace(p.KeepWhitespace)}
	if p.MaxDepth > 0 {
		opts = append(opts, xmlhub.WithMaxDepth(p.MaxDepth))
	}
	if p.MaxAttrs > 0 {
		opts = append(opts, xmlhub.WithMaxAttrs(p.MaxAttrs))
	}
	if p.MaxTokenSize > 0 {
		opts = append(opts, xmlhub.WithMaxTokenSize(p.MaxTokenSize))
	}
	return opts
}
