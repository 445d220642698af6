package ir

// Arg is one function argument: a plain value, or a callback the host
// passes in.
type Arg struct {
	Name         string    `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	Kind         ArgKind   `json:"kind,omitempty" toml:"kind,omitempty" msgpack:"kind,omitempty" validate:"known"`
	Type         TypeRef   `json:"type,omitempty" toml:"type,omitempty" msgpack:"type,omitempty" validate:"omitempty,typeref"`
	CallbackArgs []TypeRef `json:"callback_args,omitempty" toml:"callback_args,omitempty" msgpack:"callback_args,omitempty" validate:"dive,typeref"`
	CallbackRet  TypeRef   `json:"callback_ret,omitempty" toml:"callback_ret,omitempty" msgpack:"callback_ret,omitempty" validate:"omitempty,typeref"`
}

// Function describes a free function or a method.
type Function struct {
	Name            string     `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	HostName        string     `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
	Args            []Arg      `json:"args,omitempty" toml:"args,omitempty" msgpack:"args,omitempty" validate:"dive"`
	Ret             TypeRef    `json:"ret,omitempty" toml:"ret,omitempty" msgpack:"ret,omitempty" validate:"omitempty,typeref"`
	RetIsResult     bool       `json:"ret_is_result,omitempty" toml:"ret_is_result,omitempty" msgpack:"ret_is_result,omitempty"`
	Async           bool       `json:"async,omitempty" toml:"async,omitempty" msgpack:"async,omitempty"`
	Self            SelfKind   `json:"self,omitempty" toml:"self,omitempty" msgpack:"self,omitempty" validate:"known"`
	Kind            FnKind     `json:"kind,omitempty" toml:"kind,omitempty" msgpack:"kind,omitempty" validate:"known"`
	Visibility      Visibility `json:"visibility,omitempty" toml:"visibility,omitempty" msgpack:"visibility,omitempty" validate:"known"`
	Parent          string     `json:"parent,omitempty" toml:"parent,omitempty" msgpack:"parent,omitempty" validate:"omitempty,ident"`
	Strict          bool       `json:"strict,omitempty" toml:"strict,omitempty" msgpack:"strict,omitempty"`
	HostModule      string     `json:"host_module,omitempty" toml:"host_module,omitempty" msgpack:"host_module,omitempty"`
	GenericOverride string     `json:"generic_override,omitempty" toml:"generic_override,omitempty" msgpack:"generic_override,omitempty"`
	ArgsOverride    string     `json:"args_override,omitempty" toml:"args_override,omitempty" msgpack:"args_override,omitempty"`
	RetOverride     string     `json:"ret_override,omitempty" toml:"ret_override,omitempty" msgpack:"ret_override,omitempty"`
	HideFromTypes   bool       `json:"hide_from_types,omitempty" toml:"hide_from_types,omitempty" msgpack:"hide_from_types,omitempty"`
	Comments        []string   `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Field is one struct field.
type Field struct {
	Name          string   `json:"name" toml:"name" msgpack:"name" validate:"required"`
	HostName      string   `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
	Type          TypeRef  `json:"type" toml:"type" msgpack:"type" validate:"required,typeref"`
	Getter        bool     `json:"getter,omitempty" toml:"getter,omitempty" msgpack:"getter,omitempty"`
	Setter        bool     `json:"setter,omitempty" toml:"setter,omitempty" msgpack:"setter,omitempty"`
	HideFromTypes bool     `json:"hide_from_types,omitempty" toml:"hide_from_types,omitempty" msgpack:"hide_from_types,omitempty"`
	TypeOverride  string   `json:"type_override,omitempty" toml:"type_override,omitempty" msgpack:"type_override,omitempty"`
	Comments      []string `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Struct describes an exposed native type.
type Struct struct {
	Name       string     `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	HostName   string     `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
	Fields     []Field    `json:"fields,omitempty" toml:"fields,omitempty" msgpack:"fields,omitempty" validate:"dive"`
	Positional bool       `json:"positional,omitempty" toml:"positional,omitempty" msgpack:"positional,omitempty"`
	Kind       StructKind `json:"kind,omitempty" toml:"kind,omitempty" msgpack:"kind,omitempty" validate:"known"`
	Visibility Visibility `json:"visibility,omitempty" toml:"visibility,omitempty" msgpack:"visibility,omitempty" validate:"known"`
	HostModule string     `json:"host_module,omitempty" toml:"host_module,omitempty" msgpack:"host_module,omitempty"`
	Comments   []string   `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Impl is a block of methods on a struct.
type Impl struct {
	Name       string     `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	HostName   string     `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
	Items      []Function `json:"items,omitempty" toml:"items,omitempty" msgpack:"items,omitempty" validate:"dive"`
	TaskOutput TypeRef    `json:"task_output,omitempty" toml:"task_output,omitempty" msgpack:"task_output,omitempty" validate:"omitempty,typeref"`
	HostModule string     `json:"host_module,omitempty" toml:"host_module,omitempty" msgpack:"host_module,omitempty"`
	Comments   []string   `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Variant is one enum case with its integer value.
type Variant struct {
	Name     string   `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	Value    int32    `json:"value" toml:"value" msgpack:"value"`
	Comments []string `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Enum describes an integer enum.
type Enum struct {
	Name          string    `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	HostName      string    `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
	Variants      []Variant `json:"variants" toml:"variants" msgpack:"variants" validate:"required,dive"`
	HostModule    string    `json:"host_module,omitempty" toml:"host_module,omitempty" msgpack:"host_module,omitempty"`
	HideFromTypes bool      `json:"hide_from_types,omitempty" toml:"hide_from_types,omitempty" msgpack:"hide_from_types,omitempty"`
	Comments      []string  `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Const is an exposed constant.
type Const struct {
	Name          string   `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	HostName      string   `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
	Type          TypeRef  `json:"type" toml:"type" msgpack:"type" validate:"required,typeref"`
	Expr          string   `json:"expr" toml:"expr" msgpack:"expr" validate:"required"`
	HostModule    string   `json:"host_module,omitempty" toml:"host_module,omitempty" msgpack:"host_module,omitempty"`
	HideFromTypes bool     `json:"hide_from_types,omitempty" toml:"hide_from_types,omitempty" msgpack:"hide_from_types,omitempty"`
	Comments      []string `json:"comments,omitempty" toml:"comments,omitempty" msgpack:"comments,omitempty"`
}

// Namespace groups exports under a host-side object.
type Namespace struct {
	Name     string `json:"name" toml:"name" msgpack:"name" validate:"required,ident"`
	HostName string `json:"host_name" toml:"host_name" msgpack:"host_name" validate:"required,hostident"`
}

// File is the serialized form of a module.
type File struct {
	Name       string      `json:"name" toml:"name" msgpack:"name" validate:"required" jsonschema:"description=Binding module name"`
	Namespaces []Namespace `json:"namespaces,omitempty" toml:"namespaces,omitempty" msgpack:"namespaces,omitempty" validate:"dive"`
	Functions  []Function  `json:"functions,omitempty" toml:"functions,omitempty" msgpack:"functions,omitempty" validate:"dive"`
	Structs    []Struct    `json:"structs,omitempty" toml:"structs,omitempty" msgpack:"structs,omitempty" validate:"dive"`
	Impls      []Impl      `json:"impls,omitempty" toml:"impls,omitempty" msgpack:"impls,omitempty" validate:"dive"`
	Enums      []Enum      `json:"enums,omitempty" toml:"enums,omitempty" msgpack:"enums,omitempty" validate:"dive"`
	Consts     []Const     `json:"consts,omitempty" toml:"consts,omitempty" msgpack:"consts,omitempty" validate:"dive"`
}

func (a Arg) clone() Arg {
	a.CallbackArgs = cloneSlice(a.CallbackArgs)
	return a
}

func (f Function) clone() Function {
	f.Args = cloneEach(f.Args, Arg.clone)
	f.Comments = cloneSlice(f.Comments)
	return f
}

func (f Field) clone() Field {
	f.Comments = cloneSlice(f.Comments)
	return f
}

func (s Struct) clone() Struct {
	s.Fields = cloneEach(s.Fields, Field.clone)
	s.Comments = cloneSlice(s.Comments)
	return s
}

func (i Impl) clone() Impl {
	i.Items = cloneEach(i.Items, Function.clone)
	i.Comments = cloneSlice(i.Comments)
	return i
}

func (v Variant) clone() Variant {
	v.Comments = cloneSlice(v.Comments)
	return v
}

func (e Enum) clone() Enum {
	e.Variants = cloneEach(e.Variants, Variant.clone)
	e.Comments = cloneSlice(e.Comments)
	return e
}

func (c Const) clone() Const {
	c.Comments = cloneSlice(c.Comments)
	return c
}

func (f *File) clone() *File {
	return &File{
		Name:       f.Name,
		Namespaces: cloneSlice(f.Namespaces),
		Functions:  cloneEach(f.Functions, Function.clone),
		Structs:    cloneEach(f.Structs, Struct.clone),
		Impls:      cloneEach(f.Impls, Impl.clone),
		Enums:      cloneEach(f.Enums, Enum.clone),
		Consts:     cloneEach(f.Consts, Const.clone),
	}
}

func cloneSlice[E any](s []E) []E {
	if s == nil {
		return nil
	}
	return append(make([]E, 0, len(s)), s...)
}

func cloneEach[E any](s []E, fn func(E) E) []E {
	if s == nil {
		return nil
	}
	out := make([]E, len(s))
	for i, v := range s {
		out[i] = fn(v)
	}
	return out
}
