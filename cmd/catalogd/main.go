package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/vsayer/materialize/internal/cli"
	"github.com/vsayer/materialize/pkg/catalog"
)

func main() {
	// Recover from panics to ensure graceful exits with stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(catalog.ExitPanic)
		}
	}()

	if err := cli.Execute(); err != nil {
		os.Exit(catalog.ExitCodeForError(err))
	}
}
