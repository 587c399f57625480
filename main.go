package main

import (
	"os"

	"github.com/dutchx/reconciler-svc/internal/cli"
)

func main() {
	if !cli.Run(os.Args) {
		os.Exit(1)
	}
}
