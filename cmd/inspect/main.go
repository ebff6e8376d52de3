// Command inspect dumps raw rows from a hearth database for debugging:
// list keys under a prefix, or print the value stored at one key.
package main

import (
	"flag"
	"fmt"
	"os"

	"hearth/pkg/state"
	"hearth/pkg/store"
)

func main() {
	var (
		dbPath = flag.String("db", "./.database", "database path")
		prefix = flag.String("prefix", "", "list keys under this prefix (e.g. \"comment:\", \"warmth:\", \"act:\")")
		key    = flag.String("key", "", "print the value stored at this exact key")
	)
	flag.Parse()

	if *prefix == "" && *key == "" {
		fmt.Fprintln(os.Stderr, "one of --prefix or --key required")
		os.Exit(2)
	}

	if err := store.Open(state.PathsFor(*dbPath).Store); err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *key != "" {
		val, err := store.GetKey(*key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get %s: %v\n", *key, err)
			os.Exit(1)
		}
		fmt.Println(val)
		return
	}

	keys, err := store.ListKeys(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list %s: %v\n", *prefix, err)
		os.Exit(1)
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
