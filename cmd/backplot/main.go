// Command backplot compiles G-code canon traces into per-origin toolpath geometry,
// replays machine status against it and archives the result.
package main

import (
	"os"
)

// module defs - set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const appName = "backplot"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
