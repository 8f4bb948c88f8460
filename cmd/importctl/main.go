// Command importctl works with import mappings and files offline: it
// validates mapping profiles, dry-runs the parser over a file and applies
// database migrations.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
