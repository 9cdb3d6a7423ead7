package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/host"
)

// installAPI publishes the "vim" table.
func (e *Engine) installAPI() {
	L := e.L
	vim := L.NewTable()
	L.SetFuncs(vim, map[string]lua.LGFunction{
		"mode":        e.luaMode,
		"set_mode":    e.luaSetMode,
		"cursor":      e.luaCursor,
		"set_cursor":  e.luaSetCursor,
		"move":        e.luaMove,
		"line":        e.luaLine,
		"line_count":  e.luaLineCount,
		"feed_native": e.luaFeedNative,
		"log":         e.luaLog,
	})
	L.SetGlobal("vim", vim)
}

func (e *Engine) luaMode(L *lua.LState) int {
	L.Push(lua.LString(e.CurrentMode().String()))
	return 1
}

func (e *Engine) luaSetMode(L *lua.LState) int {
	m, err := engine.ParseMode(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	e.setMode(m)
	return 0
}

// primary returns the first selection of the bound editor.
func (e *Engine) primary() (host.Selection, bool) {
	ed := e.currentEditor()
	if ed == nil {
		return host.Selection{}, false
	}
	sels := ed.Selections()
	if len(sels) == 0 {
		return host.Selection{}, false
	}
	return sels[0], true
}

func (e *Engine) luaCursor(L *lua.LState) int {
	s, _ := e.primary()
	L.Push(lua.LNumber(s.Active.Line))
	L.Push(lua.LNumber(s.Active.Character))
	return 2
}

func (e *Engine) luaSetCursor(L *lua.LState) int {
	p := e.clamp(host.Position{Line: L.CheckInt(1), Character: L.CheckInt(2)})
	e.writer.SetSelections([]host.Selection{host.Cursor(p)})
	return 0
}

// luaMove moves the cursor by (lines, chars). Visual modes keep the anchor.
func (e *Engine) luaMove(L *lua.LState) int {
	dl, dc := L.CheckInt(1), L.CheckInt(2)
	s, ok := e.primary()
	if !ok {
		return 0
	}
	p := e.clamp(host.Position{Line: s.Active.Line + dl, Character: s.Active.Character + dc})
	if e.CurrentMode().IsVisual() {
		e.writer.SetSelections([]host.Selection{{Anchor: s.Anchor, Active: p}})
		return 0
	}
	e.writer.SetSelections([]host.Selection{host.Cursor(p)})
	return 0
}

func (e *Engine) luaLine(L *lua.LState) int {
	n := L.CheckInt(1)
	ed := e.currentEditor()
	if ed == nil || n < 0 || n >= ed.Document().LineCount() {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(ed.Document().LineText(n)))
	return 1
}

func (e *Engine) luaLineCount(L *lua.LState) int {
	ed := e.currentEditor()
	if ed == nil {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LNumber(ed.Document().LineCount()))
	return 1
}

// luaFeedNative types text through the host's own type command.
func (e *Engine) luaFeedNative(L *lua.LState) int {
	text := L.CheckString(1)
	if e.host == nil {
		return 0
	}
	err := e.host.ExecuteCommand(e.ctx, host.NativeCommand(host.CommandType), host.TypeArgs{Text: text}.JSON())
	if err != nil {
		L.RaiseError("feed_native: %v", err)
	}
	return 0
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.logger.Debug("lua: %s", L.CheckString(1))
	return 0
}

// clamp keeps p inside the bound editor's document. A line past the end
// keeps its column on the last line, as a vertical motion would.
func (e *Engine) clamp(p host.Position) host.Position {
	var doc host.Document
	if ed := e.currentEditor(); ed != nil {
		doc = ed.Document()
	}
	if doc != nil && doc.LineCount() > 0 && p.Line >= doc.LineCount() {
		p.Line = doc.LineCount() - 1
	}
	return host.Clamp(doc, p)
}
