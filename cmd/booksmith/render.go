package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/schemas"
	"github.com/jonathan/booksmith/internal/types"
)

var renderCmd = &cobra.Command{
	Use:   "render <book.json>",
	Short: "Package a saved book in another format",
	Long:  `Renders a book written with 'booksmith write --save-json' as HTML, Markdown or PDF without calling the model again.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRenderCmd,
}

var (
	renderOut    string
	renderFormat string
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output directory (default: current directory)")
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "", "Output format: html, pdf or md")
	rootCmd.AddCommand(renderCmd)
}

func runRenderCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, func(c *config.Config) {
		if cmd.Flags().Changed("out") {
			c.OutputDir = renderOut
		}
		if cmd.Flags().Changed("format") {
			c.Format = renderFormat
		}
	})
	if err != nil {
		return err
	}
	format, err := rendering.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	path, err := renderBookFile(context.Background(), newPackager(cfg), args[0], format, cfg.OutputDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

// renderBookFile packages the book stored at input into outDir.
func renderBookFile(ctx context.Context, packager *rendering.Packager, input string, format rendering.Format, outDir string) (string, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return "", fmt.Errorf("failed to read book: %w", err)
	}
	if err := schemas.ValidateBook(string(data)); err != nil {
		return "", fmt.Errorf("%s does not hold a finished book: %w", input, err)
	}
	var book types.Book
	if err := json.Unmarshal(data, &book); err != nil {
		return "", fmt.Errorf("failed to parse book JSON: %w", err)
	}

	pkg, err := packager.Package(ctx, book, format)
	if err != nil {
		return "", fmt.Errorf("failed to package book: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outDir, pkg.Filename)
	if err := os.WriteFile(path, pkg.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
