package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/observability"
	"github.com/jonathan/booksmith/internal/types"
)

var outlineCmd = &cobra.Command{
	Use:   "outline <topic>",
	Short: "Generate a book outline for review",
	Long: `Generates the outline of a book: its title, target audience and chapters.

Save it with --save, edit the file, then produce the book from it with 'booksmith write --outline'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOutlineCmd,
}

var (
	outlineJSON bool
	outlineSave string
)

func init() {
	outlineCmd.Flags().BoolVar(&outlineJSON, "json", false, "Print the outline as JSON")
	outlineCmd.Flags().StringVarP(&outlineSave, "save", "s", "", "Write the outline JSON to this file")
	rootCmd.AddCommand(outlineCmd)
}

func runOutlineCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer func() { _ = client.Close() }()

	o, err := generateOutline(ctx, client, cfg, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if outlineSave != "" {
		if err := saveOutline(outlineSave, o); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved outline to %s\n", outlineSave)
	}
	return printOutline(cmd.OutOrStdout(), o, outlineJSON)
}

// generateOutline runs the outline phase of a fresh session.
func generateOutline(ctx context.Context, client llm.Client, cfg config.Config, topic string) (*types.Outline, error) {
	sess := newSession(client, nil, cfg, newLogger(cfg))
	if err := sess.SubmitTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to generate outline: %w", err)
	}
	snap := sess.Snapshot()
	o := snap.Book.Outline()
	if !o.WithinSuggestedRange() {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: outline has %d chapters (suggested %d-%d)\n",
			len(o.Chapters), types.MinSuggestedChapters, types.MaxSuggestedChapters)
	}
	return &o, nil
}

func printOutline(w io.Writer, o *types.Outline, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	}
	observability.NewPrinter(w).PrintOutline(o)
	return nil
}

func saveOutline(path string, o *types.Outline) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outline: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write outline: %w", err)
	}
	return nil
}

// loadOutline reads an outline file written by --save, possibly hand-edited.
func loadOutline(path string) (*types.Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline: %w", err)
	}
	var o types.Outline
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse outline JSON: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outline %s: %w", path, err)
	}
	return &o, nil
}

// fileOutliner serves a reviewed outline instead of asking the model.
type fileOutliner struct {
	outline *types.Outline
}

func (f fileOutliner) Synthesize(context.Context, string) (*types.Outline, error) {
	o := *f.outline
	return &o, nil
}
