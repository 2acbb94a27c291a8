// Package bytecode defines the compiled unit container for the Fennec VM
// and the provider interfaces the runtime binds against.
//
// A unit is one compiled source file: its function headers and bodies, a
// string table with a run-length-encoded kind table, precomputed
// identifier translations, compiled regular expressions, and an optional
// CommonJS module table. Units are built in memory with Builder, written
// to disk as an FNBC container (fixed binary header plus a canonical
// CBOR body), and served to the runtime through the Provider interface.
//
// Providers come in two variants: UnitProvider wraps a whole unit, and
// LazyFunctionProvider is a single-function view used while a deferred
// function body is still uncompiled.
package bytecode
