package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/dachslabs/qaforge/internal/adapters/driving/cli"
	"github.com/dachslabs/qaforge/internal/logger"
)

func main() {
	// Load .env if present, for API keys and endpoint overrides.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
