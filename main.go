package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"crypto-checkout/cmd"
)

func main() {
	// .env is optional; environment variables and the yaml config file
	// cover the same settings.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
