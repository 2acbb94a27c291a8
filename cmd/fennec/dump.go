package main

import (
	"fmt"
	"os"

	"github.com/chazu/fennec/bytecode"
)

// ---------------------------------------------------------------------------
// fennec dump: print a unit container's header and tables
// ---------------------------------------------------------------------------

// handleDumpCommand processes the `fennec dump` subcommand.
// Usage:
//
//	fennec dump app.fnbc      # tables only
//	fennec -v dump app.fnbc   # also bytecode sizes and object keys
func handleDumpCommand(args []string, verbose bool) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fennec dump <unit.fnbc>")
		os.Exit(1)
	}
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}
	header, err := bytecode.ReadHeader(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", path, err)
		os.Exit(1)
	}
	u, err := bytecode.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("%s: FNBC v%d, %d body bytes\n", path, header.Version, header.BodyLength)
	if u.SourceURL != "" {
		fmt.Printf("source: %s\n", u.SourceURL)
	}

	dumpStrings(u, verbose)
	dumpFunctions(u, verbose)

	if n := len(u.RegExps); n > 0 {
		fmt.Printf("\nregexps (%d):\n", n)
		for i, re := range u.RegExps {
			fmt.Printf("  %4d  %d bytes\n", i, re.Length)
		}
	}

	if n := len(u.ModuleTable); n > 0 {
		fmt.Printf("\nmodule table (%d entries, IDs from %d):\n", n, u.ModuleTableOffset)
		for i, e := range u.ModuleTable {
			name := u.StringValue(e.NameIndex)
			fmt.Printf("  %4d  %-24q function %d\n", u.ModuleTableOffset+uint32(i), name, e.FunctionIndex)
		}
	}

	if verbose && len(u.ObjectKeys) > 0 {
		fmt.Printf("\nobject key buffer: %d bytes\n", len(u.ObjectKeys))
	}
}

func dumpStrings(u *bytecode.Unit, verbose bool) {
	fmt.Printf("\nstrings (%d, %d storage bytes):\n", u.StringCount(), len(u.StringStorage))

	// Translations carry one value per non-string entry, in table order.
	cursor := 0
	for i := uint32(0); i < u.StringCount(); i++ {
		kind, ok := bytecode.KindAt(u.StringKinds, i)
		if !ok {
			kind = bytecode.KindString
		}
		line := fmt.Sprintf("  %4d  %-10s %q", i, kind, u.StringValue(i))
		if kind != bytecode.KindString && cursor < len(u.Translations) {
			if kind == bytecode.KindPredefined {
				line += fmt.Sprintf("  (predefined %d)", u.Translations[cursor])
			} else if verbose {
				line += fmt.Sprintf("  (hash %#08x)", u.Translations[cursor])
			}
			cursor++
		}
		fmt.Println(line)
	}
}

func dumpFunctions(u *bytecode.Unit, verbose bool) {
	fmt.Printf("\nfunctions (%d):\n", u.FunctionCount())
	for i := uint32(0); i < u.FunctionCount(); i++ {
		h := u.Functions[i]
		name := u.StringValue(h.NameIndex)
		attrs := ""
		if h.Flags&bytecode.FunctionStrict != 0 {
			attrs += " strict"
		}
		if h.IsLazy() {
			attrs += " lazy"
		}
		line := fmt.Sprintf("  %4d  %-24q params=%d frame=%d%s", i, name, h.ParamCount, h.FrameSize, attrs)
		if verbose && !h.IsLazy() {
			line += fmt.Sprintf("  (%d bytecode bytes)", len(u.Bodies[i]))
		}
		fmt.Println(line)
	}
}
