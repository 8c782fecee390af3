// Command rankctl scores and explains search candidates offline, for tuning
// the ranking weights against captured provider results.
//
// Usage:
//
//	rankctl score   --query "морген cadillac" --file candidates.json
//	rankctl explain --query "морген cadillac" --file candidates.json
//	rankctl normalize "Скачать Морген Cadillac (Official Video)"
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
