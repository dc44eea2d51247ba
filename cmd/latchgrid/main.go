// Package main provides the latchgrid CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/latchgrid/internal/cli"

	// Register the compiled-in sources.
	_ "github.com/leapstack-labs/latchgrid/pkg/sources/duckdb"
	_ "github.com/leapstack-labs/latchgrid/pkg/sources/file"
	_ "github.com/leapstack-labs/latchgrid/pkg/sources/memory"
	_ "github.com/leapstack-labs/latchgrid/pkg/sources/postgres"
	_ "github.com/leapstack-labs/latchgrid/pkg/sources/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
