package filter

import (
	"fmt"

	"github.com/paulmach/osm"
	lua "github.com/yuin/gopher-lua"
)

// Runtime hosts the Lua relation-selection hook. A script may define
//
//	function osmassembler.select_relation(relation)
//	    return relation.tags.boundary == 'administrative'
//	end
//
// which is consulted for every relation the profile already matched. The
// hook narrows selection; it cannot add relation types the profile skips.
type Runtime struct {
	L              *lua.LState
	selectRelation lua.LValue
}

// NewRuntime creates a Lua state with the osmassembler API registered.
func NewRuntime() *Runtime {
	L := lua.NewState()
	r := &Runtime{L: L}

	api := L.NewTable()
	api.RawSetString("version", lua.LString("1.0.0"))
	L.SetGlobal("osmassembler", api)

	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

// LoadFile loads and executes a Lua selection script
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	r.extractCallbacks()
	return nil
}

// LoadString loads and executes Lua code from a string (for testing)
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	r.extractCallbacks()
	return nil
}

func (r *Runtime) extractCallbacks() {
	api := r.L.GetGlobal("osmassembler")
	if api.Type() == lua.LTTable {
		r.selectRelation = api.(*lua.LTable).RawGetString("select_relation")
	}
}

// HasSelectRelation reports whether the script defined the hook.
func (r *Runtime) HasSelectRelation() bool {
	return r.selectRelation != nil && r.selectRelation.Type() == lua.LTFunction
}

// SelectRelation calls the hook with a Lua view of the relation and
// returns its verdict. Relations are selected when no hook is defined.
func (r *Runtime) SelectRelation(rel *osm.Relation) (bool, error) {
	if !r.HasSelectRelation() {
		return true, nil
	}

	obj := r.L.NewTable()
	obj.RawSetString("id", lua.LNumber(rel.ID))

	tags := r.L.NewTable()
	for _, tag := range rel.Tags {
		tags.RawSetString(tag.Key, lua.LString(tag.Value))
	}
	obj.RawSetString("tags", tags)

	mems := r.L.NewTable()
	for _, m := range rel.Members {
		entry := r.L.NewTable()
		entry.RawSetString("type", lua.LString(m.Type))
		entry.RawSetString("ref", lua.LNumber(m.Ref))
		entry.RawSetString("role", lua.LString(m.Role))
		mems.Append(entry)
	}
	obj.RawSetString("members", mems)

	err := r.L.CallByParam(lua.P{
		Fn:      r.selectRelation,
		NRet:    1,
		Protect: true,
	}, obj)
	if err != nil {
		return false, fmt.Errorf("select_relation failed for relation %d: %w", rel.ID, err)
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)
	return lua.LVAsBool(ret), nil
}
