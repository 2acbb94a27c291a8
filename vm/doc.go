// Package vm implements the Fennec runtime's module-loading layer.
//
// This package contains:
//   - NaN-boxed value representation
//   - Arena heap with handle-scope rooting and mark/sweep collection
//   - Process-wide symbol table with predefined well-known symbols
//   - Module bindings: the live state of one loaded bytecode unit
//   - Code records, lazy function materialization, and shape caches
//   - Domains grouping the bindings of one compiled source
package vm
