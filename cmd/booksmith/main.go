// Package main provides the booksmith CLI: generate outlines and books from a
// topic, render saved books, and run the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "booksmith",
	Short: "AI book generator",
	Long: `booksmith turns a topic into a short illustrated book: an outline, one chapter per outline entry and a cover image, packaged as HTML, Markdown or PDF.

Configuration is layered: --config JSON file, then environment variables, then built-in defaults. Flags override all of them.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
