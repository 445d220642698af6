package main

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/ir"
)

func witTypeStr(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return witKindStr(v.Kind)
	default:
		return fmt.Sprintf("%T", t)
	}
}

func witKindStr(k wit.TypeDefKind) string {
	switch v := k.(type) {
	case *wit.List:
		return "list<" + witTypeStr(v.Type) + ">"
	case *wit.Option:
		return "option<" + witTypeStr(v.Type) + ">"
	case *wit.Result:
		if v.OK == nil && v.Err == nil {
			return "result"
		}
		return "result<" + witTypeStr(v.OK) + ", " + witTypeStr(v.Err) + ">"
	case *wit.Tuple:
		parts := make([]string, len(v.Types))
		for i, t := range v.Types {
			parts[i] = witTypeStr(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case *wit.Own:
		return "own<" + witTypeStr(v.Type) + ">"
	case *wit.Borrow:
		return "borrow<" + witTypeStr(v.Type) + ">"
	case *wit.Record:
		return "record"
	case *wit.Enum:
		return "enum"
	case *wit.Resource:
		return "resource"
	default:
		return fmt.Sprintf("%T", k)
	}
}

func coreSigStr(params, results []api.ValueType) string {
	return "(" + valueTypesStr(params) + ") -> (" + valueTypesStr(results) + ")"
}

func valueTypesStr(ts []api.ValueType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = api.ValueTypeName(t)
	}
	return strings.Join(parts, ", ")
}

// signature renders fn in host terms: name(arg: type, ...) -> ret.
func signature(m *ir.Module, fn ir.Function) string {
	var params []string
	for _, a := range fn.Args {
		if a.Kind == ir.ArgCallback {
			params = append(params, a.Name+": "+callbackStr(a))
			continue
		}
		params = append(params, a.Name+": "+typeStr(m, a.Type))
	}
	s := fn.HostName + "(" + strings.Join(params, ", ") + ")"
	if !fn.Ret.IsZero() {
		ret := typeStr(m, fn.Ret)
		if fn.RetIsResult {
			ret = "result<" + ret + ", string>"
		}
		s += " -> " + ret
	}
	if fn.Async {
		s = "async " + s
	}
	return s
}

func callbackStr(a ir.Arg) string {
	args := make([]string, len(a.CallbackArgs))
	for i, t := range a.CallbackArgs {
		args[i] = string(t)
	}
	s := "func(" + strings.Join(args, ", ") + ")"
	if !a.CallbackRet.IsZero() {
		s += " -> " + string(a.CallbackRet)
	}
	return s
}

// typeStr prefers the declared spelling and falls back to the WIT form
// when the reference does not resolve.
func typeStr(m *ir.Module, t ir.TypeRef) string {
	if _, err := m.WIT(t); err != nil {
		return string(t) + " (unresolved)"
	}
	return string(t)
}

func kindLabel(fn ir.Function) string {
	switch {
	case fn.Kind != ir.FnNormal:
		return fn.Kind.String()
	case fn.Self.IsMethod():
		return "method"
	default:
		return "function"
	}
}
