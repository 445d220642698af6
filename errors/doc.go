// Package errors provides structured error types for the hostbridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries context: descriptor path, native/host type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseIR, errors.KindDuplicateName).
//		Path("git", "JsRepo").
//		GoType("Repository").
//		HostType("JsRepo").
//		Detail("host name already declared").
//		Build()
//
// Or use convenience constructors for the bridge's failure taxonomy:
//
//	err := errors.EnvironmentExpired("wrap")
//	err := errors.HostAllocation("JsRepo", cause)
//	err := errors.DeriveFailure("JsRemote", cause)
//	err := errors.UseAfterRelease(errors.PhaseAccess, "JsRepo")
//
// All errors implement the standard error interface and support errors.Is/As.
// A target without a Phase matches on Kind alone, so the package-level
// sentinels (ErrEnvironmentExpired, ErrUseAfterRelease, ...) match errors
// raised in any phase.
package errors
