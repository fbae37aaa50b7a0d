package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/r9s-ai/cardq/internal/cli"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()
	os.Exit(cli.Execute())
}
