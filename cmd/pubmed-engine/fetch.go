// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-engine/internal/assemble"
	"github.com/pdiddy/pubmed-engine/internal/efetch"
	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/httputil"
	"github.com/pdiddy/pubmed-engine/internal/sink"
	"github.com/pdiddy/pubmed-engine/internal/walker"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [pmids...]",
	Short: "Fetch articles from NCBI E-utilities by PMID",
	Long: `Fetch retrieves articles from NCBI efetch and runs them through the same
assembly and chunking as parse. Records are written as JSON lines to stdout
unless --format/--out select another sink.

An NCBI API key and contact email are read from --api-key/--email, the
PUBMED_ENGINE_FETCH_* environment, the config file, or .secrets/.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.String("format", string(types.OutputJSONL), "output format: jsondir, jsonl, csl, sqlite, postgres")
	f.String("out", "-", "output path, or - for stdout")
	f.String("dsn", "", "Postgres connection string for --format postgres")
	f.String("api-key", "", "NCBI API key")
	f.String("email", "", "contact email sent to NCBI")
	f.Int("max-tokens", 0, "token budget per abstract chunk (default 500)")
	f.String("tokenizer", "", "token counter: words, p50k_base, cl100k_base (default p50k_base)")
	f.Bool("no-split", false, "write records without abstract chunks")
	f.Bool("citations", false, "add Crossref citation counts")
	f.Bool("journal-ranking", false, "add journal rankings")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more PMIDs")
	}
	if err := bindFlags(cmd, map[string]string{
		"output.dsn":             "dsn",
		"fetch.api_key":          "api-key",
		"fetch.email":            "email",
		"split.max_tokens":       "max-tokens",
		"split.tokenizer":        "tokenizer",
		"enrich.citation_count":  "citations",
		"enrich.journal_ranking": "journal-ranking",
	}); err != nil {
		return err
	}
	noSplit, _ := cmd.Flags().GetBool("no-split")
	cfg := pipelineConfig()
	if noSplit {
		cfg.Split.Enabled = false
	}
	format, _ := cmd.Flags().GetString("format")
	cfg.Output.Format = types.OutputFormat(format)
	cfg.Output.Path, _ = cmd.Flags().GetString("out")
	log := slog.Default()

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

	client := efetch.New(httputil.NewClient(cfg.Fetch.Timeout), cfg.Fetch)
	found := 0
	for start := 0; start < len(args); start += efetch.MaxBatch {
		ids := args[start:min(start+efetch.MaxBatch, len(args))]
		body, err := client.FetchBatch(ctx, ids)
		if errors.Is(err, errs.ErrNotFound) {
			log.Warn("no articles returned", "pmids", ids)
			continue
		}
		if err != nil {
			return err
		}

		w, err := walker.New(bytes.NewReader(body), walker.Options{MaxArticleBytes: cfg.Walk.MaxArticleBytes})
		if err != nil {
			return err
		}
		err = asm.Stream(ctx, w, func(res assemble.Result) error {
			if res.Err != nil {
				log.Warn("article skipped", "index", res.Index, "error", res.Err)
				return nil
			}
			rec := types.ChunkedRecord{ArticleRecord: *res.Record}
			if sp != nil {
				chunked, err := sp.ChunkRecord(res.Record, cfg.Split.MaxTokens)
				if err != nil {
					return err
				}
				rec = chunked
			}
			found++
			return out.Write(ctx, rec)
		})
		w.Close()
		if err != nil {
			return err
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing sink: %w", err)
	}
	if found < len(args) {
		fmt.Fprintf(os.Stderr, "%d of %d PMID(s) not found\n", len(args)-found, len(args))
	}
	return nil
}
