package main

import (
	// Register the built-in target handlers and store backends.
	_ "github.com/seaward/sluice/internal/core/targets"
	_ "github.com/seaward/sluice/internal/store/memory"
	_ "github.com/seaward/sluice/internal/store/postgres"
	_ "github.com/seaward/sluice/internal/store/sqlite"
)

func main() {
	Execute()
}
