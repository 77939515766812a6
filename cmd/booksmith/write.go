package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/booksmith/internal/artifact"
	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/db"
	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/observability"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/tui"
	"github.com/jonathan/booksmith/internal/types"
)

var writeCmd = &cobra.Command{
	Use:   "write <topic>",
	Short: "Generate a complete book from a topic",
	Long: `Runs the whole pipeline: outline -> chapters and cover -> packaging.

Pass --outline to produce from a reviewed outline file instead of generating one.
When DATABASE_URL is configured the finished book is also persisted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWriteCmd,
}

var (
	writeOutline      string
	writeOut          string
	writeFormat       string
	writeDisplayDelay string
	writeSaveJSON     bool
	writeTUI          bool
	writeDatabaseURL  string
)

func init() {
	writeCmd.Flags().StringVar(&writeOutline, "outline", "", "Produce from this outline JSON instead of generating one")
	writeCmd.Flags().StringVarP(&writeOut, "out", "o", "", "Output directory (default: current directory)")
	writeCmd.Flags().StringVarP(&writeFormat, "format", "f", "", "Output format: html, pdf or md")
	writeCmd.Flags().StringVar(&writeDisplayDelay, "display-delay", "", "Pause after completion before returning, e.g. 1s")
	writeCmd.Flags().BoolVar(&writeSaveJSON, "save-json", false, "Also write the book as JSON for 'booksmith render'")
	writeCmd.Flags().BoolVar(&writeTUI, "tui", false, "Show an interactive progress view")
	writeCmd.Flags().StringVar(&writeDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(writeCmd)
}

// writeOptions are the per-invocation inputs of writeBook.
type writeOptions struct {
	Topic   string
	Outline *types.Outline
	Format  rendering.Format
	JSON    bool
	TUI     bool
}

func runWriteCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, func(c *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("out") {
			c.OutputDir = writeOut
		}
		if flags.Changed("format") {
			c.Format = writeFormat
		}
		if flags.Changed("display-delay") {
			c.DisplayDelay = writeDisplayDelay
		}
		if flags.Changed("db-url") {
			c.DatabaseURL = writeDatabaseURL
		}
	})
	if err != nil {
		return err
	}
	format, err := rendering.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	opts := writeOptions{Topic: strings.Join(args, " "), Format: format, JSON: writeSaveJSON, TUI: writeTUI}
	if writeOutline != "" {
		if opts.Outline, err = loadOutline(writeOutline); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer func() { _ = client.Close() }()

	book, paths, err := writeBook(ctx, client, cfg, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	for _, p := range paths {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
	}

	if cfg.DatabaseURL != "" {
		runID, err := persistBook(ctx, cfg, book)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved run %s\n", runID)
	}
	return nil
}

// writeBook generates, produces and packages one book. It returns the book
// and the paths of the files written.
func writeBook(ctx context.Context, client llm.Client, cfg config.Config, opts writeOptions, out io.Writer) (*types.Book, []string, error) {
	logger := newLogger(cfg)
	var outliner pipeline.Outliner
	if opts.Outline != nil {
		outliner = fileOutliner{outline: opts.Outline}
	}
	sess := newSession(client, outliner, cfg, logger)
	printer := observability.NewPrinter(out)

	if err := sess.SubmitTopic(ctx, opts.Topic); err != nil {
		return nil, nil, fmt.Errorf("failed to generate outline: %w", err)
	}
	snap := sess.Snapshot()
	o := snap.Book.Outline()
	printer.PrintOutline(&o)

	var book *types.Book
	var err error
	if opts.TUI {
		book, err = tui.Run(ctx, sess)
	} else {
		unsubscribe := sess.Subscribe(printer.PrintEvent)
		book, err = sess.StartProduction(ctx)
		unsubscribe()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("production failed: %w", err)
	}
	if book == nil {
		return nil, nil, fmt.Errorf("production did not run: the outline has no chapters")
	}
	printer.PrintBook(book)

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	pkg, err := newPackager(cfg).Package(ctx, *book, opts.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to package book: %w", err)
	}
	path := filepath.Join(cfg.OutputDir, pkg.Filename)
	if err := os.WriteFile(path, pkg.Data, 0644); err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	paths := []string{path}

	if opts.JSON {
		jsonPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
		data, err := json.MarshalIndent(book, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode book: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return nil, nil, fmt.Errorf("failed to write %s: %w", jsonPath, err)
		}
		paths = append(paths, jsonPath)
	}
	return book, paths, nil
}

// persistBook saves a finished book to PostgreSQL and, when configured, its
// cover and HTML to object storage.
func persistBook(ctx context.Context, cfg config.Config, book *types.Book) (string, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return "", err
	}

	markdown, err := rendering.RenderMarkdown(*book)
	if err != nil {
		return "", err
	}
	runID, err := database.SaveBook(ctx, db.SaveBookInput{SessionID: "cli", Book: book, Markdown: markdown})
	if err != nil {
		return "", err
	}

	s3cfg := s3Config(cfg)
	if !s3cfg.Enabled() {
		return runID.String(), nil
	}
	store, err := artifact.NewS3Store(s3cfg)
	if err != nil {
		return "", err
	}
	if book.Cover.IsPresent() {
		key, err := store.Put(ctx, runID.String(), artifact.CoverObjectName(book.Cover.MIMEType), book.Cover.MIMEType, book.Cover.Image)
		if err != nil {
			return "", err
		}
		if err := database.SaveObjectKey(ctx, runID, db.StepCover, key); err != nil {
			return "", err
		}
	}
	html, err := rendering.RenderHTML(*book)
	if err != nil {
		return "", err
	}
	key, err := store.Put(ctx, runID.String(), artifact.HTMLObject, "text/html; charset=utf-8", []byte(html))
	if err != nil {
		return "", err
	}
	if err := database.SaveObjectKey(ctx, runID, db.StepHTML, key); err != nil {
		return "", err
	}
	return runID.String(), nil
}

func s3Config(cfg config.Config) artifact.S3Config {
	return artifact.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}
}
