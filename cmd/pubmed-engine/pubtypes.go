// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-engine/internal/assemble"
	"github.com/pdiddy/pubmed-engine/internal/batch"
	"github.com/pdiddy/pubmed-engine/internal/extract"
	"github.com/pdiddy/pubmed-engine/internal/sink"
	"github.com/pdiddy/pubmed-engine/internal/walker"
)

var pubtypesCmd = &cobra.Command{
	Use:   "pubtypes [files or directories...]",
	Short: "List the publication types of every article as CSV",
	Long: `Pubtypes streams PubMed XML files and writes one CSV row per article
with its PMID, PMC id and publication types. Only the fields needed for the
listing are extracted.`,
	RunE: runPubtypes,
}

func init() {
	pubtypesCmd.Flags().String("out", "-", "CSV output file, or - for stdout")
	pubtypesCmd.Flags().Int("workers", 1, "files processed concurrently")

	rootCmd.AddCommand(pubtypesCmd)
}

func runPubtypes(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more PubMed XML files or directories")
	}
	outPath, _ := cmd.Flags().GetString("out")
	workers, _ := cmd.Flags().GetInt("workers")
	cfg := pipelineConfig()
	log := slog.Default()

	paths, err := batch.ExpandPaths(args)
	if err != nil {
		return err
	}

	out, err := sink.OpenPubTypeCSV(outPath, os.Stdout)
	if err != nil {
		return err
	}
	defer out.Close()

	d := batch.New(batch.Options{
		Assembler: assemble.New(assemble.Options{
			Fields: []extract.Field{extract.ArticleIDs, extract.PublicationTypes},
			Logger: log,
		}),
		Sink:     out,
		Walk:     walker.Options{MaxArticleBytes: cfg.Walk.MaxArticleBytes},
		Workers:  workers,
		Progress: os.Stderr,
		Logger:   log,
	})
	summary, err := d.Run(cmd.Context(), paths)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", outPath, err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}
