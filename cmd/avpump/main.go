// Package main is the entry point for the avpump application.
package main

import (
	"os"

	"github.com/jmylchreest/avpump/cmd/avpump/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
