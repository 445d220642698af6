// Package ir describes what a native library exposes to the host: free
// functions, structs and their fields, impl blocks of methods, enums,
// constants and namespaces.
//
// Descriptors are plain values. A Builder or New validates them into an
// immutable Module:
//
//	b := ir.NewBuilder("git")
//	b.Struct(ir.Struct{Name: "Repository"})
//	b.Impl(ir.Impl{Name: "Repository", Items: []ir.Function{
//		{Name: "init", Kind: ir.FnFactory, Args: []ir.Arg{{Name: "path", Type: "string"}}, Ret: "Repository"},
//		{Name: "remote", Self: ir.SelfRef, Args: []ir.Arg{{Name: "name", Type: "string"}}, Ret: "string", RetIsResult: true},
//	}})
//	m, err := b.Build()
//
// Host names left empty are derived: functions and fields become camelCase,
// types keep their native name. Host names must be unique within a host
// module; methods are unique per accessor role, so a getter and a setter may
// share a name.
//
// Types are written in WIT syntax and map onto go.bytecodealliance.org/wit
// types; Module.CoreSignature lowers a function to core wasm value types.
//
// Modules serialize to TOML, JSON and msgpack with declaration order intact.
// Schema returns the JSON Schema of the file format.
package ir
