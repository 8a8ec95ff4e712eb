// Package main provides the entry point for the wptsyncd daemon.
package main

import (
	"os"

	"github.com/mozilla/wpt-sync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
