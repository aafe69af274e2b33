// Package watch implements Lua scripted pause conditions that are evaluated
// against guest register snapshots.
package watch

import (
	"errors"
	"fmt"

	"github.com/retroenv/nesjit/internal/debugsync"
	lua "github.com/yuin/gopher-lua"
)

var ErrEmptyCondition = errors.New("empty watch condition")

var flagGlobals = []struct {
	name string
	bit  int
}{
	{"c", debugsync.FlagCarry},
	{"z", debugsync.FlagZero},
	{"i", debugsync.FlagInterrupt},
	{"d", debugsync.FlagDecimal},
	{"v", debugsync.FlagOverflow},
	{"n", debugsync.FlagNegative},
}

// Condition is a compiled Lua condition. The registers of the snapshot are
// exposed as the globals a, x, y, sp, p and pc, the status flags as the
// booleans c, z, i, d, v and n. A Condition is not safe for concurrent use.
type Condition struct {
	source string
	state  *lua.LState
	fn     *lua.LFunction
}

// Compile compiles a condition. The source is either an expression, like
// "pc == 0xc000 and x > 3", or a chunk that returns a value.
func Compile(source string) (*Condition, error) {
	if source == "" {
		return nil, ErrEmptyCondition
	}

	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	} {
		state.Push(state.NewFunction(lib.open))
		state.Push(lua.LString(lib.name))
		state.Call(1, 0)
	}

	fn, err := state.LoadString("return " + source)
	if err != nil {
		var chunkErr error
		fn, chunkErr = state.LoadString(source)
		if chunkErr != nil {
			state.Close()
			return nil, fmt.Errorf("compiling watch condition '%s': %w", source, err)
		}
	}

	return &Condition{
		source: source,
		state:  state,
		fn:     fn,
	}, nil
}

// String returns the source of the condition.
func (c *Condition) String() string {
	return c.source
}

// Eval evaluates the condition for a snapshot. Lua truthiness applies:
// every value except nil and false matches.
func (c *Condition) Eval(snapshot debugsync.Snapshot) (bool, error) {
	ls := c.state
	ls.SetGlobal("a", lua.LNumber(snapshot.A))
	ls.SetGlobal("x", lua.LNumber(snapshot.X))
	ls.SetGlobal("y", lua.LNumber(snapshot.Y))
	ls.SetGlobal("sp", lua.LNumber(snapshot.SP))
	ls.SetGlobal("p", lua.LNumber(snapshot.Status))
	ls.SetGlobal("pc", lua.LNumber(snapshot.PC))
	for _, flag := range flagGlobals {
		ls.SetGlobal(flag.name, lua.LBool(snapshot.Flag(flag.bit)))
	}

	ls.Push(c.fn)
	if err := ls.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("evaluating watch condition '%s': %w", c.source, err)
	}
	result := ls.Get(-1)
	ls.Pop(1)
	return lua.LVAsBool(result), nil
}

// Close releases the Lua state.
func (c *Condition) Close() {
	c.state.Close()
}
