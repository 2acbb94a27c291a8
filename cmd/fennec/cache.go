package main

import (
	"fmt"
	"os"

	"github.com/chazu/fennec/bytecode"
	"github.com/chazu/fennec/config"
	"github.com/chazu/fennec/unitcache"
)

// ---------------------------------------------------------------------------
// fennec cache: manage the content-addressed unit cache
// ---------------------------------------------------------------------------

// handleCacheCommand processes the `fennec cache` subcommand family.
// The cache location comes from fennec.toml ([cache] path) or its
// default under .fennec/.
// Usage:
//
//	fennec cache stats
//	fennec cache put app.fnbc      # prints the unit's key
//	fennec cache get <key> out.fnbc
//	fennec cache rm <key>
func handleCacheCommand(args []string, cfg *config.Config, verbose bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: fennec cache <stats|put|get|rm> [args...]")
		os.Exit(1)
	}

	store, err := unitcache.Open(cfg.CachePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening unit cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch args[0] {
	case "stats":
		cacheStats(store, verbose)
	case "put":
		cachePut(store, args[1:])
	case "get":
		cacheGet(store, args[1:])
	case "rm":
		cacheRemove(store, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown cache command: %s\n", args[0])
		os.Exit(1)
	}
}

func cacheStats(store *unitcache.Store, verbose bool) {
	st, err := store.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading cache stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d units, %d bytes\n", st.Path, st.Units, st.Bytes)

	if !verbose {
		return
	}
	keys, err := store.Keys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing cache keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}
}

func cachePut(store *unitcache.Store, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fennec cache put <unit.fnbc>")
		os.Exit(1)
	}
	u, err := bytecode.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
		os.Exit(1)
	}
	key, err := store.PutUnit(u)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error caching %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Println(key)
}

func cacheGet(store *unitcache.Store, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: fennec cache get <key> <out.fnbc>")
		os.Exit(1)
	}
	key, err := unitcache.ParseKey(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	data, err := store.Get(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching %s: %v\n", args[0], err)
		os.Exit(1)
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[1], err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), args[1])
}

func cacheRemove(store *unitcache.Store, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fennec cache rm <key>")
		os.Exit(1)
	}
	key, err := unitcache.ParseKey(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := store.Delete(key); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing %s: %v\n", args[0], err)
		os.Exit(1)
	}
}
