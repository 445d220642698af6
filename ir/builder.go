package ir

import (
	"fortio.org/safecast"

	"github.com/wippyai/hostbridge/errors"
)

// Builder assembles a module. Every value added is copied.
type Builder struct {
	file File
}

// NewBuilder starts a module named name.
func NewBuilder(name string) *Builder {
	return &Builder{file: File{Name: name}}
}

func (b *Builder) Namespace(name, hostName string) *Builder {
	b.file.Namespaces = append(b.file.Namespaces, Namespace{Name: name, HostName: hostName})
	return b
}

func (b *Builder) Function(fn Function) *Builder {
	b.file.Functions = append(b.file.Functions, fn.clone())
	return b
}

func (b *Builder) Struct(s Struct) *Builder {
	b.file.Structs = append(b.file.Structs, s.clone())
	return b
}

func (b *Builder) Impl(im Impl) *Builder {
	b.file.Impls = append(b.file.Impls, im.clone())
	return b
}

func (b *Builder) Enum(e Enum) *Builder {
	b.file.Enums = append(b.file.Enums, e.clone())
	return b
}

func (b *Builder) Const(c Const) *Builder {
	b.file.Consts = append(b.file.Consts, c.clone())
	return b
}

// Build validates and freezes the module. The builder can keep going
// afterwards; later additions do not affect modules already built.
func (b *Builder) Build() (*Module, error) {
	return New(&b.file)
}

// Variants numbers names from zero in order.
func Variants(names ...string) ([]Variant, error) {
	out := make([]Variant, len(names))
	for i, name := range names {
		v, err := safecast.Conv[int32](i)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseIR, errors.KindInvalidInput, err, "too many variants")
		}
		out[i] = Variant{Name: name, Value: v}
	}
	return out, nil
}
