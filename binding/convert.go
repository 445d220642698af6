package binding

import (
	"reflect"

	"fortio.org/safecast"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/ir"
	"github.com/wippyai/hostbridge/resource"
)

var slotType = reflect.TypeOf(resource.Slot(0))

// checkArg verifies that v can be passed where arg is declared. Only the
// outer shape is checked; handlers convert the rest.
func checkArg(fnName string, arg ir.Arg, v any) error {
	path := []string{fnName, arg.Name}
	if arg.Kind == ir.ArgCallback {
		if v == nil || reflect.TypeOf(v).Kind() != reflect.Func {
			return errors.TypeMismatch(errors.PhaseCall, path, typeOf(v), "callback")
		}
		return nil
	}

	expr, err := arg.Type.Parse()
	if err != nil {
		return err
	}
	if expr.Name == "option" && v == nil {
		return nil
	}
	if v == nil {
		return errors.TypeMismatch(errors.PhaseCall, path, "nil", string(arg.Type))
	}

	rv := reflect.ValueOf(v)
	ok := true
	switch expr.Name {
	case "bool":
		ok = rv.Kind() == reflect.Bool
	case "string":
		ok = rv.Kind() == reflect.String
	case "char":
		ok = rv.Kind() == reflect.Int32
	case "f32", "f64":
		ok = rv.CanFloat() || rv.CanInt() || rv.CanUint()
	case "u8", "u16", "u32", "u64", "s8", "s16", "s32", "s64":
		ok = fitsInt(rv, expr.Name)
	case "list", "tuple":
		ok = rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case "own", "borrow":
		ok = rv.Type() == slotType
	case "option", "result":
	default:
		// A declared struct: classes travel as slots, objects as values.
		if rv.Type() == slotType && rv.Uint() == 0 {
			ok = false
		}
	}
	if !ok {
		return errors.TypeMismatch(errors.PhaseCall, path, typeOf(v), string(arg.Type))
	}
	return nil
}

// fitsInt reports whether an integer value converts to the named integer
// type without loss.
func fitsInt(rv reflect.Value, name string) bool {
	if rv.Type() == slotType {
		return false
	}
	switch {
	case rv.CanInt():
		return convertible(rv.Int(), name)
	case rv.CanUint():
		return convertible(rv.Uint(), name)
	default:
		return false
	}
}

func convertible[N int64 | uint64](n N, name string) bool {
	var err error
	switch name {
	case "u8":
		_, err = safecast.Conv[uint8](n)
	case "u16":
		_, err = safecast.Conv[uint16](n)
	case "u32":
		_, err = safecast.Conv[uint32](n)
	case "u64":
		_, err = safecast.Conv[uint64](n)
	case "s8":
		_, err = safecast.Conv[int8](n)
	case "s16":
		_, err = safecast.Conv[int16](n)
	case "s32":
		_, err = safecast.Conv[int32](n)
	case "s64":
		_, err = safecast.Conv[int64](n)
	default:
		return false
	}
	return err == nil
}

func typeOf(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
