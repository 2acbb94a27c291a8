// Fennec CLI - inspection and cache tooling for compiled bytecode units
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/fennec/config"
	"github.com/chazu/fennec/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fennec [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Inspects compiled bytecode units and manages the on-disk unit cache.\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  dump <unit.fnbc>         Print a unit's header and tables\n")
		fmt.Fprintf(os.Stderr, "  symbols <unit.fnbc>      Bind a unit and list the symbols it interns\n")
		fmt.Fprintf(os.Stderr, "  cache stats              Show unit cache contents\n")
		fmt.Fprintf(os.Stderr, "  cache put <unit.fnbc>    Store a unit, printing its key\n")
		fmt.Fprintf(os.Stderr, "  cache get <key> <out>    Write a cached unit to a file\n")
		fmt.Fprintf(os.Stderr, "  cache rm <key>           Remove a cached unit\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fennec dump app.fnbc\n")
		fmt.Fprintf(os.Stderr, "  fennec -v symbols app.fnbc   # also show heap and GC activity\n")
		fmt.Fprintf(os.Stderr, "  fennec cache put app.fnbc\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := loadConfig()

	verbosity := cfg.Log.Verbosity
	if *verbose && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	switch args[0] {
	case "dump":
		handleDumpCommand(args[1:], *verbose)
	case "symbols":
		handleSymbolsCommand(args[1:], cfg, *verbose)
	case "cache":
		handleCacheCommand(args[1:], cfg, *verbose)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

// loadConfig reads fennec.toml from the working directory or an
// ancestor, falling back to defaults when none exists.
func loadConfig() *config.Config {
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading fennec.toml: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

// runtimeConfig maps fennec.toml onto runtime knobs.
func runtimeConfig(cfg *config.Config) vm.Config {
	return vm.Config{
		HeapInitialThreshold: cfg.Heap.InitialThreshold,
		HeapGrowthFactor:     cfg.Heap.GrowthFactor,
		HeapMaxCells:         cfg.Heap.MaxCells,
		GCStress:             cfg.Heap.GCStress,
		EagerRecords:         cfg.Compile.Eager,
		AdviseSequential:     cfg.Advice.Sequential,
		AdviseWillNeed:       cfg.Advice.WillNeed,
		AdviseRandom:         cfg.Advice.Random,
	}
}
