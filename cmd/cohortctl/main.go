// cohortctl is the command-line client for cohort analysis.
package main

import (
	"github.com/joho/godotenv"

	"github.com/cohortlens/cohortlens/internal/cli"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cli.Execute()
}
