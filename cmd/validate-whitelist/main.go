package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/dmz-exchange/whitelist"
	"github.com/rs/zerolog"
)

/* validate-whitelist - read-only check of a whitelist file and an optional seed
 * Usage: go run ./cmd/validate-whitelist whitelist.json [seed.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	whitelistFile := "data/whitelist.json"
	if len(os.Args) > 1 {
		whitelistFile = os.Args[1]
	}

	fmt.Printf("Validating whitelist file: %s\n", whitelistFile)
	fmt.Println(strings.Repeat("-", 50))

	if _, err := os.Stat(whitelistFile); err != nil {
		fail(err)
	}
	wl, err := whitelist.New(whitelistFile, zerolog.Nop())
	if err != nil {
		fail(err)
	}
	entries, err := wl.List()
	if err != nil {
		fail(err)
	}
	if err := whitelist.CheckEntries(entries); err != nil {
		fail(err)
	}

	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d project(s):\n", len(entries))
	printEntries(entries)

	if len(os.Args) > 2 {
		seedFile := os.Args[2]
		fmt.Printf("\nValidating seed file: %s\n", seedFile)
		seed, err := whitelist.LoadSeed(seedFile)
		if err != nil {
			fail(err)
		}
		fmt.Printf("✓ Seed has %d project(s):\n", len(seed))
		printEntries(seed)
	}

	os.Exit(0)
}

func printEntries(entries []whitelist.Entry) {
	for i, e := range entries {
		state := "disabled"
		if e.Enabled {
			state = "enabled"
		}
		fmt.Printf("  %d. %s  %s\n", i+1, e.Code, state)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
