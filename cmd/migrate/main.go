// Command migrate applies the embedded schema migrations to DATABASE_URL.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Loaded before flag parsing so .env values reach EnvVars.
	_ = godotenv.Load()
	if err := newMigrateApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
