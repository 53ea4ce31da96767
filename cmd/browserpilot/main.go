package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"browserpilot/internal/config"
)

func main() {
	// Load .env if present; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
