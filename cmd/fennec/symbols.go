package main

import (
	"fmt"
	"os"

	"github.com/chazu/fennec/bytecode"
	"github.com/chazu/fennec/config"
	"github.com/chazu/fennec/vm"
)

// ---------------------------------------------------------------------------
// fennec symbols: bind a unit into a fresh runtime and list its symbols
// ---------------------------------------------------------------------------

// handleSymbolsCommand processes the `fennec symbols` subcommand. It
// builds a runtime with the loaded configuration, binds the unit, and
// prints every symbol the binding registered, so the effect of heap and
// advice settings on interning can be observed directly.
// Usage:
//
//	fennec symbols app.fnbc
//	fennec -v symbols app.fnbc   # also heap statistics
func handleSymbolsCommand(args []string, cfg *config.Config, verbose bool) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fennec symbols <unit.fnbc>")
		os.Exit(1)
	}
	path := args[0]

	u, err := bytecode.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	rt := vm.NewRuntime(runtimeConfig(cfg))
	defer rt.Shutdown()

	scope := rt.NewHandleScope()
	defer scope.Close()

	domain, err := rt.NewDomain()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error allocating domain: %v\n", err)
		os.Exit(1)
	}
	scope.HandleRef(domain)

	b, err := vm.NewModuleBinding(rt, domain, bytecode.NewUnitProvider(u), 0, u.SourceURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error binding %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("%s: %d string-table entries, %d symbols in table\n",
		path, u.StringCount(), rt.Symbols().Len())
	for i := uint32(0); i < u.StringCount(); i++ {
		kind, ok := bytecode.KindAt(u.StringKinds, i)
		if !ok || kind == bytecode.KindString {
			continue
		}
		id := b.SymbolForString(i)
		note := ""
		if vm.IsPredefined(id) {
			note = "  predefined"
		}
		fmt.Printf("  %4d  symbol %-6d %q%s\n", i, id, rt.Symbols().StringOf(id), note)
	}

	if verbose {
		st := rt.HeapStats()
		fmt.Printf("\nheap: %d live cells, %d collections, binding footprint %d bytes\n",
			st.Live, st.Collections, b.MemoryFootprint())
	}
}
