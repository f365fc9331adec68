// Command audit-verify checks the hash chain of an audit log file and exits
// non-zero if any entry has been altered or removed.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"schwab-invest-bot/internal/audit"
)

func main() {
	path := flag.String("file", "audit.log", "path to the audit log")
	flag.Parse()

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer f.Close()

	count, err := audit.VerifyChain(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID after %d entries: %v\n", count, err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d entries verified\n", count)
}
