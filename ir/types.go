package ir

import (
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/errors"
)

// TypeRef is a host-facing type written in WIT syntax: a primitive
// ("u32", "string"), a generic ("list<u8>", "option<string>",
// "result<u32, string>", "tuple<u8, u8>", "own<Repo>", "borrow<Repo>") or
// the name of a struct or enum declared in the same module.
type TypeRef string

// TypeExpr is a parsed TypeRef.
type TypeExpr struct {
	Name   string
	Params []TypeExpr
}

var primitives = map[string]wit.Type{
	"bool":   wit.Bool{},
	"u8":     wit.U8{},
	"u16":    wit.U16{},
	"u32":    wit.U32{},
	"u64":    wit.U64{},
	"s8":     wit.S8{},
	"s16":    wit.S16{},
	"s32":    wit.S32{},
	"s64":    wit.S64{},
	"f32":    wit.F32{},
	"f64":    wit.F64{},
	"char":   wit.Char{},
	"string": wit.String{},
}

// generic name -> allowed parameter counts
var generics = map[string][2]int{
	"list":   {1, 1},
	"option": {1, 1},
	"result": {0, 2},
	"tuple":  {1, 16},
	"own":    {1, 1},
	"borrow": {1, 1},
}

// IsZero reports whether the reference is empty (no type).
func (t TypeRef) IsZero() bool {
	return strings.TrimSpace(string(t)) == ""
}

// Parse parses the reference into a TypeExpr.
func (t TypeRef) Parse() (TypeExpr, error) {
	p := &typeParser{src: string(t)}
	expr, err := p.parse()
	if err != nil {
		return TypeExpr{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return TypeExpr{}, p.fail("unexpected trailing input")
	}
	return expr, nil
}

// Names returns every user-defined type name the reference mentions.
func (t TypeRef) Names() ([]string, error) {
	expr, err := t.Parse()
	if err != nil {
		return nil, err
	}
	var out []string
	expr.walk(func(e TypeExpr) {
		if _, ok := primitives[e.Name]; ok {
			return
		}
		if _, ok := generics[e.Name]; ok {
			return
		}
		if e.Name != "_" {
			out = append(out, e.Name)
		}
	})
	return out, nil
}

// WIT converts the reference without a module: user-defined names become
// owned resource handles.
func (t TypeRef) WIT() (wit.Type, error) {
	return t.resolve(nil)
}

// String returns the canonical spelling of the expression.
func (e TypeExpr) String() string {
	if len(e.Params) == 0 {
		return e.Name
	}
	parts := make([]string, len(e.Params))
	for i, p := range e.Params {
		parts[i] = p.String()
	}
	return e.Name + "<" + strings.Join(parts, ", ") + ">"
}

func (e TypeExpr) walk(fn func(TypeExpr)) {
	fn(e)
	for _, p := range e.Params {
		p.walk(fn)
	}
}

// namedResolver maps a user-defined name to its WIT type.
type namedResolver func(name string) (wit.Type, bool)

func (t TypeRef) resolve(named namedResolver) (wit.Type, error) {
	if t.IsZero() {
		return nil, nil
	}
	expr, err := t.Parse()
	if err != nil {
		return nil, err
	}
	return expr.wit(named)
}

func (e TypeExpr) wit(named namedResolver) (wit.Type, error) {
	if p, ok := primitives[e.Name]; ok {
		return p, nil
	}
	param := func(i int) (wit.Type, error) {
		if e.Params[i].Name == "_" {
			return nil, nil
		}
		return e.Params[i].wit(named)
	}

	switch e.Name {
	case "list":
		elem, err := param(0)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	case "option":
		elem, err := param(0)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil
	case "result":
		r := &wit.Result{}
		if len(e.Params) > 0 {
			ok, err := param(0)
			if err != nil {
				return nil, err
			}
			r.OK = ok
		}
		if len(e.Params) > 1 {
			er, err := param(1)
			if err != nil {
				return nil, err
			}
			r.Err = er
		}
		return &wit.TypeDef{Kind: r}, nil
	case "tuple":
		types := make([]wit.Type, len(e.Params))
		for i := range e.Params {
			ty, err := param(i)
			if err != nil {
				return nil, err
			}
			types[i] = ty
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}, nil
	case "own", "borrow":
		res := resourceDef(e.Params[0].Name)
		if e.Name == "own" {
			return &wit.TypeDef{Kind: &wit.Own{Type: res}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Borrow{Type: res}}, nil
	}

	if named != nil {
		if ty, ok := named(e.Name); ok {
			return ty, nil
		}
		return nil, errors.NotFound(errors.PhaseIR, "type", e.Name)
	}
	return &wit.TypeDef{Kind: &wit.Own{Type: resourceDef(e.Name)}}, nil
}

func resourceDef(name string) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) parse() (TypeExpr, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return TypeExpr{}, p.fail("expected type name")
	}
	expr := TypeExpr{Name: name}

	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '<' {
		p.pos++
		for {
			param, err := p.parse()
			if err != nil {
				return TypeExpr{}, err
			}
			expr.Params = append(expr.Params, param)
			p.skipSpace()
			if p.pos >= len(p.src) {
				return TypeExpr{}, p.fail("unterminated type parameters")
			}
			if p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.src[p.pos] == '>' {
				p.pos++
				break
			}
			return TypeExpr{}, p.fail("expected ',' or '>'")
		}
	}

	if _, ok := primitives[name]; ok && len(expr.Params) > 0 {
		return TypeExpr{}, p.fail(name + " takes no type parameters")
	}
	if bounds, ok := generics[name]; ok {
		if n := len(expr.Params); n < bounds[0] || n > bounds[1] {
			return TypeExpr{}, p.fail("wrong number of type parameters for " + name)
		}
	}
	return expr, nil
}

func (p *typeParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c == '-' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || p.pos > start && c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) fail(msg string) error {
	return errors.New(errors.PhaseIR, errors.KindInvalidInput).
		Value(p.src).
		Detail("type %q at offset %d: %s", p.src, p.pos, msg).
		Build()
}

// Canonical ABI flattening limits.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// Flatten lowers a WIT type to the core wasm value types that carry it.
// A nil type flattens to nothing.
func Flatten(t wit.Type) []api.ValueType {
	if t == nil {
		return nil
	}
	switch v := t.(type) {
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return []api.ValueType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []api.ValueType{api.ValueTypeI64}
	case wit.F32:
		return []api.ValueType{api.ValueTypeF32}
	case wit.F64:
		return []api.ValueType{api.ValueTypeF64}
	case wit.String:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.TypeDef:
		return flattenDef(v)
	default:
		return []api.ValueType{api.ValueTypeI32}
	}
}

func flattenDef(td *wit.TypeDef) []api.ValueType {
	if td == nil || td.Kind == nil {
		return []api.ValueType{api.ValueTypeI32}
	}

	switch kind := td.Kind.(type) {
	case *wit.Record:
		var flat []api.ValueType
		for _, f := range kind.Fields {
			flat = append(flat, Flatten(f.Type)...)
		}
		return flat
	case *wit.Tuple:
		var flat []api.ValueType
		for _, elem := range kind.Types {
			flat = append(flat, Flatten(elem)...)
		}
		return flat
	case *wit.List:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.Option:
		return append([]api.ValueType{api.ValueTypeI32}, Flatten(kind.Type)...)
	case *wit.Result:
		payload := Flatten(kind.OK)
		payload = join(payload, Flatten(kind.Err))
		return append([]api.ValueType{api.ValueTypeI32}, payload...)
	case *wit.Variant:
		var payload []api.ValueType
		for _, c := range kind.Cases {
			payload = join(payload, Flatten(c.Type))
		}
		return append([]api.ValueType{api.ValueTypeI32}, payload...)
	case *wit.Enum, *wit.Own, *wit.Borrow:
		return []api.ValueType{api.ValueTypeI32}
	default:
		return []api.ValueType{api.ValueTypeI32}
	}
}

// join merges two payload layouts slot by slot.
func join(a, b []api.ValueType) []api.ValueType {
	for i, t := range b {
		if i >= len(a) {
			a = append(a, t)
			continue
		}
		a[i] = joinType(a[i], t)
	}
	return a
}

func joinType(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) || (a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}
