package ir

import (
	"github.com/invopop/jsonschema"

	"github.com/wippyai/hostbridge/errors"
)

// SelfKind is how a method receives its receiver.
type SelfKind uint8

const (
	SelfNone SelfKind = iota
	SelfValue
	SelfRef
	SelfMutRef
)

var selfNames = []string{"none", "value", "ref", "mut-ref"}

// FnKind is the role a function plays on the host side.
type FnKind uint8

const (
	FnNormal FnKind = iota
	FnConstructor
	FnFactory
	FnGetter
	FnSetter
)

var fnKindNames = []string{"normal", "constructor", "factory", "getter", "setter"}

// StructKind selects how a struct is exposed: as a class without a host
// constructor, as a constructible class, or as a plain object copied by value.
type StructKind uint8

const (
	StructPlain StructKind = iota
	StructConstructor
	StructObject
)

var structKindNames = []string{"plain", "constructor", "object"}

// Visibility is the native visibility of an exposed item.
type Visibility uint8

const (
	VisPublic Visibility = iota
	VisCrate
	VisPrivate
)

var visibilityNames = []string{"public", "crate", "private"}

// ArgKind distinguishes plain value arguments from callbacks.
type ArgKind uint8

const (
	ArgValue ArgKind = iota
	ArgCallback
)

var argKindNames = []string{"value", "callback"}

func (k SelfKind) String() string   { return enumString(k, selfNames) }
func (k FnKind) String() string     { return enumString(k, fnKindNames) }
func (k StructKind) String() string { return enumString(k, structKindNames) }
func (v Visibility) String() string { return enumString(v, visibilityNames) }
func (k ArgKind) String() string    { return enumString(k, argKindNames) }

func (k SelfKind) Known() bool   { return int(k) < len(selfNames) }
func (k FnKind) Known() bool     { return int(k) < len(fnKindNames) }
func (k StructKind) Known() bool { return int(k) < len(structKindNames) }
func (v Visibility) Known() bool { return int(v) < len(visibilityNames) }
func (k ArgKind) Known() bool    { return int(k) < len(argKindNames) }

func (k SelfKind) MarshalText() ([]byte, error)   { return marshalEnum(k, selfNames, "self") }
func (k FnKind) MarshalText() ([]byte, error)     { return marshalEnum(k, fnKindNames, "fn kind") }
func (k StructKind) MarshalText() ([]byte, error) { return marshalEnum(k, structKindNames, "struct kind") }
func (v Visibility) MarshalText() ([]byte, error) { return marshalEnum(v, visibilityNames, "visibility") }
func (k ArgKind) MarshalText() ([]byte, error)    { return marshalEnum(k, argKindNames, "arg kind") }

func (k *SelfKind) UnmarshalText(b []byte) error   { return unmarshalEnum(k, b, selfNames, "self") }
func (k *FnKind) UnmarshalText(b []byte) error     { return unmarshalEnum(k, b, fnKindNames, "fn kind") }
func (k *StructKind) UnmarshalText(b []byte) error { return unmarshalEnum(k, b, structKindNames, "struct kind") }
func (v *Visibility) UnmarshalText(b []byte) error { return unmarshalEnum(v, b, visibilityNames, "visibility") }
func (k *ArgKind) UnmarshalText(b []byte) error    { return unmarshalEnum(k, b, argKindNames, "arg kind") }

func (SelfKind) JSONSchema() *jsonschema.Schema   { return enumSchema(selfNames) }
func (FnKind) JSONSchema() *jsonschema.Schema     { return enumSchema(fnKindNames) }
func (StructKind) JSONSchema() *jsonschema.Schema { return enumSchema(structKindNames) }
func (Visibility) JSONSchema() *jsonschema.Schema { return enumSchema(visibilityNames) }
func (ArgKind) JSONSchema() *jsonschema.Schema    { return enumSchema(argKindNames) }

// IsAccessor reports whether the function is a property getter or setter.
func (k FnKind) IsAccessor() bool {
	return k == FnGetter || k == FnSetter
}

// IsMethod reports whether the function takes a receiver.
func (k SelfKind) IsMethod() bool {
	return k != SelfNone
}

func enumString[E ~uint8](v E, names []string) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "unknown"
}

func marshalEnum[E ~uint8](v E, names []string, what string) ([]byte, error) {
	if int(v) >= len(names) {
		return nil, errors.InvalidInput(errors.PhaseIR, "unknown "+what)
	}
	return []byte(names[v]), nil
}

func unmarshalEnum[E ~uint8](dst *E, text []byte, names []string, what string) error {
	s := string(text)
	for i, name := range names {
		if name == s {
			*dst = E(i)
			return nil
		}
	}
	return errors.New(errors.PhaseIR, errors.KindInvalidData).
		Value(s).
		Detail("unknown %s %q", what, s).
		Build()
}

func enumSchema(names []string) *jsonschema.Schema {
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	return &jsonschema.Schema{Type: "string", Enum: values, Default: names[0]}
}
