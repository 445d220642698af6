package ir

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/errors"
)

// Module is a validated, immutable set of binding descriptors. Accessors
// return copies; nothing a caller does to them reaches the module.
type Module struct {
	file    *File
	structs map[string]int
	enums   map[string]int
	funcs   map[string]int
	methods map[string][]methodRef
}

type methodRef struct {
	impl, item int
}

// New validates f and builds a module from a private copy of it. Missing
// host names are derived from native names first.
func New(f *File) (*Module, error) {
	if f == nil {
		return nil, errors.InvalidInput(errors.PhaseIR, "nil module file")
	}
	c := f.clone()
	normalize(c)
	if err := Validate(c); err != nil {
		return nil, err
	}

	m := &Module{
		file:    c,
		structs: make(map[string]int, len(c.Structs)),
		enums:   make(map[string]int, len(c.Enums)),
		funcs:   make(map[string]int, len(c.Functions)),
		methods: make(map[string][]methodRef),
	}
	for i, s := range c.Structs {
		m.structs[s.Name] = i
	}
	for i, e := range c.Enums {
		m.enums[e.Name] = i
	}
	for i, fn := range c.Functions {
		m.funcs[fn.HostName] = i
	}
	for i, im := range c.Impls {
		for j := range im.Items {
			m.methods[im.Name] = append(m.methods[im.Name], methodRef{impl: i, item: j})
		}
	}
	return m, nil
}

// normalize fills derived defaults in place.
func normalize(f *File) {
	for i := range f.Functions {
		normalizeFunction(&f.Functions[i], "")
	}
	for i := range f.Structs {
		s := &f.Structs[i]
		if s.HostName == "" {
			s.HostName = s.Name
		}
		for j := range s.Fields {
			fd := &s.Fields[j]
			if fd.HostName == "" {
				fd.HostName = fieldHostName(fd.Name)
			}
		}
	}
	for i := range f.Impls {
		im := &f.Impls[i]
		if im.HostName == "" {
			im.HostName = im.Name
		}
		for j := range im.Items {
			normalizeFunction(&im.Items[j], im.Name)
		}
	}
	for i := range f.Enums {
		if f.Enums[i].HostName == "" {
			f.Enums[i].HostName = f.Enums[i].Name
		}
	}
	for i := range f.Consts {
		if f.Consts[i].HostName == "" {
			f.Consts[i].HostName = f.Consts[i].Name
		}
	}
	for i := range f.Namespaces {
		if f.Namespaces[i].HostName == "" {
			f.Namespaces[i].HostName = f.Namespaces[i].Name
		}
	}
}

func normalizeFunction(fn *Function, parent string) {
	if fn.HostName == "" {
		fn.HostName = CamelCase(fn.Name)
	}
	if fn.Parent == "" {
		fn.Parent = parent
	}
}

func fieldHostName(name string) string {
	if _, err := strconv.Atoi(name); err == nil {
		return "field" + name
	}
	return CamelCase(name)
}

// CamelCase converts a snake_case native name to the host's camelCase.
// Leading underscores are kept.
func CamelCase(name string) string {
	trimmed := strings.TrimLeft(name, "_")
	prefix := name[:len(name)-len(trimmed)]

	var b strings.Builder
	b.WriteString(prefix)
	upper := false
	for i, r := range trimmed {
		if r == '_' {
			upper = i > 0
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.file.Name
}

// File returns a copy of the module in its serialized form.
func (m *Module) File() *File {
	return m.file.clone()
}

func (m *Module) Namespaces() []Namespace { return cloneSlice(m.file.Namespaces) }
func (m *Module) Functions() []Function   { return cloneEach(m.file.Functions, Function.clone) }
func (m *Module) Structs() []Struct       { return cloneEach(m.file.Structs, Struct.clone) }
func (m *Module) Impls() []Impl           { return cloneEach(m.file.Impls, Impl.clone) }
func (m *Module) Enums() []Enum           { return cloneEach(m.file.Enums, Enum.clone) }
func (m *Module) Consts() []Const         { return cloneEach(m.file.Consts, Const.clone) }

// Struct looks up a struct by native name.
func (m *Module) Struct(name string) (Struct, bool) {
	i, ok := m.structs[name]
	if !ok {
		return Struct{}, false
	}
	return m.file.Structs[i].clone(), true
}

// Enum looks up an enum by native name.
func (m *Module) Enum(name string) (Enum, bool) {
	i, ok := m.enums[name]
	if !ok {
		return Enum{}, false
	}
	return m.file.Enums[i].clone(), true
}

// Function looks up a free function by host name.
func (m *Module) Function(hostName string) (Function, bool) {
	i, ok := m.funcs[hostName]
	if !ok {
		return Function{}, false
	}
	return m.file.Functions[i].clone(), true
}

// Methods returns every method of a struct across all of its impl blocks,
// in declaration order.
func (m *Module) Methods(typeName string) []Function {
	refs := m.methods[typeName]
	out := make([]Function, 0, len(refs))
	for _, r := range refs {
		out = append(out, m.file.Impls[r.impl].Items[r.item].clone())
	}
	return out
}

// Method looks up a method by host name and accessor role: pass FnGetter or
// FnSetter for accessors and any other kind for ordinary methods.
func (m *Module) Method(typeName, hostName string, role FnKind) (Function, bool) {
	want := accessorRole(role)
	for _, r := range m.methods[typeName] {
		fn := &m.file.Impls[r.impl].Items[r.item]
		if fn.HostName == hostName && accessorRole(fn.Kind) == want {
			return fn.clone(), true
		}
	}
	return Function{}, false
}

// WIT resolves a type reference against the module's declarations: enums
// become WIT enums, object structs records, and other structs resources.
func (m *Module) WIT(t TypeRef) (wit.Type, error) {
	defs := make(map[string]*wit.TypeDef)
	var resolve namedResolver
	resolve = func(name string) (wit.Type, bool) {
		if td, ok := defs[name]; ok {
			return &wit.TypeDef{Kind: &wit.Own{Type: td}}, true
		}
		if i, ok := m.enums[name]; ok {
			e := m.file.Enums[i]
			cases := make([]wit.EnumCase, len(e.Variants))
			for j, v := range e.Variants {
				cases[j] = wit.EnumCase{Name: v.Name}
			}
			host := e.HostName
			return &wit.TypeDef{Name: &host, Kind: &wit.Enum{Cases: cases}}, true
		}
		i, ok := m.structs[name]
		if !ok {
			return nil, false
		}
		s := m.file.Structs[i]
		if s.Kind != StructObject {
			td := resourceDef(s.HostName)
			defs[name] = td
			return &wit.TypeDef{Kind: &wit.Own{Type: td}}, true
		}
		host := s.HostName
		rec := &wit.Record{}
		for _, f := range s.Fields {
			ft, err := f.Type.resolve(resolve)
			if err != nil {
				return nil, false
			}
			rec.Fields = append(rec.Fields, wit.Field{Name: f.HostName, Type: ft})
		}
		return &wit.TypeDef{Name: &host, Kind: rec}, true
	}
	return t.resolve(resolve)
}

// CoreSignature returns the core wasm parameter and result types a function
// lowers to. Methods take the receiver handle first, callbacks are passed as
// table indices, and async functions return a task handle. Signatures wider
// than the canonical ABI limits spill to linear memory.
func (m *Module) CoreSignature(fn Function) (params, results []api.ValueType, err error) {
	if fn.Self.IsMethod() {
		params = append(params, api.ValueTypeI32)
	}
	for _, a := range fn.Args {
		if a.Kind == ArgCallback {
			params = append(params, api.ValueTypeI32)
			continue
		}
		t, err := m.WIT(a.Type)
		if err != nil {
			return nil, nil, err
		}
		params = append(params, Flatten(t)...)
	}

	switch {
	case fn.Async:
		results = []api.ValueType{api.ValueTypeI32}
	case fn.Kind == FnConstructor || fn.Kind == FnFactory:
		results = []api.ValueType{api.ValueTypeI32}
	default:
		ret := fn.Ret
		if fn.RetIsResult {
			if ret.IsZero() {
				ret = "result<_, string>"
			} else {
				ret = "result<" + ret + ", string>"
			}
		}
		t, err := m.WIT(ret)
		if err != nil {
			return nil, nil, err
		}
		results = Flatten(t)
	}

	if len(params) > MaxFlatParams {
		params = []api.ValueType{api.ValueTypeI32}
	}
	if len(results) > MaxFlatResults {
		params = append(params, api.ValueTypeI32)
		results = nil
	}
	return params, results, nil
}
