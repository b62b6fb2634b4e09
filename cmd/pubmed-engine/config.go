// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pubmed-engine/internal/assemble"
	"github.com/pdiddy/pubmed-engine/internal/enrich"
	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/httputil"
	"github.com/pdiddy/pubmed-engine/internal/splitter"
	"github.com/pdiddy/pubmed-engine/internal/walker"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "pubmed-engine/0.1"
)

func init() {
	viper.SetDefault("walk.max_article_bytes", walker.DefaultMaxArticleBytes)
	viper.SetDefault("split.enabled", true)
	viper.SetDefault("split.max_tokens", splitter.DefaultMaxTokens)
	viper.SetDefault("split.tokenizer", string(types.TokenizerP50kBase))
	viper.SetDefault("enrich.ranking_cache_size", enrich.DefaultRankingCacheSize)
	viper.SetDefault("http.timeout", defaultTimeout)
	viper.SetDefault("http.user_agent", defaultUserAgent)
	viper.SetDefault("http.max_retries", 5)
	viper.SetDefault("output.format", string(types.OutputJSONDir))
	viper.SetDefault("batch.workers", 1)
}

// bindFlags binds config keys to the flags of the running command. Call it
// from RunE; several subcommands share keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("flag --%s not defined on %s", flag, cmd.Name())
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// pipelineConfig reads the merged flag, env and file configuration and
// fills credentials from .secrets/.
func pipelineConfig() types.PipelineConfig {
	httpCfg := types.HTTPConfig{
		Timeout:    viper.GetDuration("http.timeout"),
		UserAgent:  viper.GetString("http.user_agent"),
		MaxRetries: viper.GetInt("http.max_retries"),
	}
	cfg := types.PipelineConfig{
		Walk: types.WalkConfig{
			MaxArticleBytes: viper.GetInt("walk.max_article_bytes"),
		},
		Split: types.SplitConfig{
			Enabled:   viper.GetBool("split.enabled"),
			MaxTokens: viper.GetInt("split.max_tokens"),
			Tokenizer: types.TokenizerName(viper.GetString("split.tokenizer")),
		},
		Enrich: types.EnrichConfig{
			HTTPConfig:       httpCfg,
			CitationCount:    viper.GetBool("enrich.citation_count"),
			JournalRanking:   viper.GetBool("enrich.journal_ranking"),
			Mailto:           viper.GetString("enrich.mailto"),
			RankingCacheSize: viper.GetInt("enrich.ranking_cache_size"),
		},
		Fetch: types.FetchConfig{
			HTTPConfig: httpCfg,
			APIKey:     viper.GetString("fetch.api_key"),
			Email:      viper.GetString("fetch.email"),
			Tool:       viper.GetString("fetch.tool"),
		},
		Output: types.OutputConfig{
			Format: types.OutputFormat(viper.GetString("output.format")),
			Path:   viper.GetString("output.path"),
			DSN:    viper.GetString("output.dsn"),
		},
		Batch: types.BatchConfig{
			Workers: viper.GetInt("batch.workers"),
			Dedupe:  viper.GetBool("batch.dedupe"),
		},
	}
	loadedSecrets.Apply(&cfg)
	return cfg
}

// newAssembler wires the enrichment collaborators the config enables.
func newAssembler(cfg types.EnrichConfig, log *slog.Logger) (*assemble.Assembler, error) {
	opts := assemble.Options{Logger: log}
	var client *http.Client
	if cfg.CitationCount || cfg.JournalRanking {
		client = httputil.NewClient(cfg.Timeout)
	}
	if cfg.CitationCount {
		opts.Citations = enrich.NewCrossref(client, cfg, log)
	}
	if cfg.JournalRanking {
		exaly, err := enrich.NewExaly(client, cfg, log)
		if err != nil {
			return nil, err
		}
		opts.Rankings = exaly
	}
	return assemble.New(opts), nil
}

// newSplitter returns nil when splitting is disabled.
func newSplitter(cfg types.SplitConfig) (*splitter.Splitter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens %d: %w", cfg.MaxTokens, errs.ErrInvalidMaxTokens)
	}
	counter, err := splitter.NewCounter(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	return splitter.New(nil, counter), nil
}
