// Proptour - CLI for generating property tour videos from photos
package main

import (
	"os"

	"github.com/proptour/proptour-cli/internal/cli"
)

// Version information - overridden via LDFLAGS on release builds
var (
	Version   = "v1.0.0"
	BuildTime = "2026-08-29"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
