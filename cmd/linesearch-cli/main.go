// Package main provides the linesearch-cli tool for querying a linesearch server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirosfoundation/linesearch/cmd/linesearch-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
