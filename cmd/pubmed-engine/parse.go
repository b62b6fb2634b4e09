// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pubmed-engine/internal/batch"
	"github.com/pdiddy/pubmed-engine/internal/sink"
	"github.com/pdiddy/pubmed-engine/internal/walker"
)

var parseCmd = &cobra.Command{
	Use:   "parse [files or directories...]",
	Short: "Stream PubMed XML files into a record sink",
	Long: `Parse streams PubMed XML files (plain or gzip) article by article,
assembles one record per article, chunks each abstract, and writes the
records to the selected sink. Directories are expanded to their *.xml and
*.xml.gz files; "-" reads stdin.

Articles that cannot be parsed are logged and counted; the file continues.
A file whose source is unreadable is reported as failed and the remaining
files are still processed.`,
	RunE: runParse,
}

func init() {
	f := parseCmd.Flags()
	f.String("format", "", "output format: jsondir, jsonl, csl, sqlite, postgres (default jsondir)")
	f.String("out", "", "output directory (jsondir), file (jsonl, csl, sqlite) or - for stdout")
	f.String("dsn", "", "Postgres connection string for --format postgres")
	f.Int("max-tokens", 0, "token budget per abstract chunk (default 500)")
	f.String("tokenizer", "", "token counter: words, p50k_base, cl100k_base (default p50k_base)")
	f.Bool("no-split", false, "write records without abstract chunks")
	f.Int("workers", 0, "files processed concurrently (default 1)")
	f.Bool("dedupe", false, "drop repeated PMIDs within a file")
	f.Bool("citations", false, "add Crossref citation counts")
	f.Bool("journal-ranking", false, "add journal rankings")
	f.Int("max-article-bytes", 0, "largest accepted article element in bytes (default 64 MiB)")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more PubMed XML files or directories")
	}
	if err := bindFlags(cmd, map[string]string{
		"output.format":          "format",
		"output.path":            "out",
		"output.dsn":             "dsn",
		"split.max_tokens":       "max-tokens",
		"split.tokenizer":        "tokenizer",
		"batch.workers":          "workers",
		"batch.dedupe":           "dedupe",
		"enrich.citation_count":  "citations",
		"enrich.journal_ranking": "journal-ranking",
		"walk.max_article_bytes": "max-article-bytes",
	}); err != nil {
		return err
	}
	if noSplit, _ := cmd.Flags().GetBool("no-split"); noSplit {
		viper.Set("split.enabled", false)
	}
	cfg := pipelineConfig()
	log := slog.Default()

	paths, err := batch.ExpandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no *.xml or *.xml.gz files found")
	}

	asm, err := newAssembler(cfg.Enrich, log)
	if err != nil {
		return err
	}
	sp, err := newSplitter(cfg.Split)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out, err := sink.Open(ctx, cfg.Output, os.Stdout)
	if err != nil {
		return err
	}
	defer out.Close()

	// Progress goes to stderr when records stream to stdout.
	progress := os.Stdout
	if cfg.Output.Path == "" || cfg.Output.Path == "-" {
		progress = os.Stderr
	}

	d := batch.New(batch.Options{
		Assembler: asm,
		Splitter:  sp,
		MaxTokens: cfg.Split.MaxTokens,
		Sink:      out,
		Walk:      walker.Options{MaxArticleBytes: cfg.Walk.MaxArticleBytes},
		Workers:   cfg.Batch.Workers,
		Dedupe:    cfg.Batch.Dedupe,
		Progress:  progress,
		Logger:    log,
	})
	summary, err := d.Run(ctx, paths)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing sink: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}
