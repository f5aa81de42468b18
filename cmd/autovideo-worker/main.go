// Package main is the entry point for the autovideo worker.
package main

import (
	"os"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/cmd/autovideo-worker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
