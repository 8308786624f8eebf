// Command vamana builds, queries, inspects and publishes filtered Vamana
// indexes.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
