// Package main is the entry point for chief, the job orchestrator.
package main

import (
	"os"

	"chief/cmd/chief/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
