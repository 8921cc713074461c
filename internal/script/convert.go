package script

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value for Go callers. Whole numbers become int64;
// a table whose keys are exactly 1..n becomes []any and any other table a
// map[string]any. Functions, userdata and repeated tables become nil.
func toGo(lv lua.LValue) any {
	seen := make(map[*lua.LTable]struct{})
	var conv func(lua.LValue) any
	conv = func(lv lua.LValue) any {
		switch v := lv.(type) {
		case lua.LBool:
			return bool(v)
		case lua.LString:
			return string(v)
		case lua.LNumber:
			if i := int64(v); lua.LNumber(i) == v {
				return i
			}
			return float64(v)
		case *lua.LTable:
			if _, ok := seen[v]; ok {
				return nil
			}
			seen[v] = struct{}{}

			keys := 0
			v.ForEach(func(lua.LValue, lua.LValue) { keys++ })
			if n := v.Len(); n > 0 && n == keys {
				list := make([]any, 0, n)
				for i := 1; i <= n; i++ {
					list = append(list, conv(v.RawGetInt(i)))
				}
				return list
			}
			fields := make(map[string]any, keys)
			v.ForEach(func(k, item lua.LValue) { fields[k.String()] = conv(item) })
			return fields
		}
		return nil
	}
	return conv(lv)
}

// toLua converts a Go value for scripts. Numbers of any width become
// numbers, slices and arrays become sequences, and maps become tables keyed
// by the string form of each key. Anything else is passed as its text.
func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case error:
		return lua.LString(v.Error())
	case fmt.Stringer:
		return lua.LString(v.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return lua.LNil
		}
		t := L.CreateTable(rv.Len(), 0)
		for i := range rv.Len() {
			t.Append(toLua(L, rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		if rv.IsNil() {
			return lua.LNil
		}
		t := L.CreateTable(0, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			t.RawSetString(fmt.Sprint(it.Key().Interface()), toLua(L, it.Value().Interface()))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}
