// Command dispatchloop runs a priority dispatcher loop, benchmarks it and
// inspects its configuration.
package main

import (
	"os"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
