package main

import (
	"fmt"
	"os"

	"github.com/fmuoria/CV-Analyzer/internal/logging"
)

func main() {
	err := execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
