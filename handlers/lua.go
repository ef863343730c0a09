package handlers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/jacoelho/xmlhub"
	"github.com/jacoelho/xmlhub/pkg/xmlevent"
)

// Lua callback globals. Any of them may be left undefined.
const (
	luaOnStart = "on_start"
	luaOnEnd   = "on_end"
	luaOnText  = "on_text"
)

// ErrScriptClosed is returned when a Lua handler receives events after its
// scope has closed or failed.
var ErrScriptClosed = errors.New("lua handler is closed")

// LuaScript is a compiled handler script. The compiled chunk is shared; every
// handler gets its own interpreter state.
//
// Scripts run with the base, table, string and math libraries and may define
// the globals on_start(name, attrs), on_end(name) and on_text(value). The
// global emit(line) writes a record to the output sink and scope holds the
// name of the element that opened the scope.
type LuaScript struct {
	name  string
	proto *lua.FunctionProto
}

// CompileLua parses and compiles source. name is used in error messages.
func CompileLua(name, source string) (*LuaScript, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parse lua script %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile lua script %s: %w", name, err)
	}
	return &LuaScript{name: name, proto: proto}, nil
}

// LoadLua compiles the script stored at path.
func LoadLua(path string) (*LuaScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lua script: %w", err)
	}
	return CompileLua(path, string(data))
}

// Name returns the script name.
func (s *LuaScript) Name() string {
	return s.name
}

// Factory returns a factory whose handlers run s and emit to out.
func (s *LuaScript) Factory(out *Lines) xmlhub.Factory {
	return func() xmlhub.Handler {
		return &LuaHandler{script: s, out: out}
	}
}

// LuaHandler runs a script for one scope. The interpreter is created on the
// scope's first start tag and closed when the scope ends, a callback fails,
// or the document is aborted and the hub calls Close.
type LuaHandler struct {
	script *LuaScript
	out    *Lines
	state  *lua.LState
	closed bool
}

func (h *LuaHandler) StartElement(name string, attrs xmlevent.Attributes) error {
	if h.state == nil && !h.closed {
		if err := h.open(name); err != nil {
			h.close()
			return err
		}
	}
	if h.closed {
		return ErrScriptClosed
	}
	tbl := h.state.NewTable()
	for _, a := range attrs {
		tbl.RawSetString(a.Name, lua.LString(a.Value))
	}
	return h.call(luaOnStart, lua.LString(name), tbl)
}

func (h *LuaHandler) Text(value string) error {
	if h.closed || h.state == nil {
		return ErrScriptClosed
	}
	return h.call(luaOnText, lua.LString(value))
}

func (h *LuaHandler) EndElement(name string) error {
	if h.closed || h.state == nil {
		return ErrScriptClosed
	}
	defer h.close()
	return h.call(luaOnEnd, lua.LString(name))
}

func (h *LuaHandler) open(scope string) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	h.state = L
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	L.SetGlobal("scope", lua.LString(scope))
	L.SetGlobal("emit", L.NewFunction(h.emit))

	L.Push(L.NewFunctionFromProto(h.script.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("run lua script %s: %w", h.script.name, err)
	}
	L.SetTop(0)
	return nil
}

func (h *LuaHandler) call(global string, args ...lua.LValue) error {
	fn := h.state.GetGlobal(global)
	if fn == lua.LNil {
		return nil
	}
	if fn.Type() != lua.LTFunction {
		h.close()
		return fmt.Errorf("lua script %s: %s is %s, not a function", h.script.name, global, fn.Type())
	}
	err := h.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	if err != nil {
		h.close()
		return fmt.Errorf("lua script %s: %s: %w", h.script.name, global, err)
	}
	return nil
}

func (h *LuaHandler) emit(L *lua.LState) int {
	line := L.CheckString(1)
	if h.out == nil {
		return 0
	}
	if err := h.out.WriteLine(line); err != nil {
		L.RaiseError("emit: %v", err)
	}
	return 0
}

// Close releases the interpreter without running on_end. It is safe to call
// more than once.
func (h *LuaHandler) Close() error {
	h.close()
	return nil
}

func (h *LuaHandler) close() {
	if h.closed {
		return
	}
	h.closed = true
	if h.state != nil {
		h.state.Close()
	}
}
