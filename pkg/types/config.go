// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by the collaborators that make
// network requests (efetch, Crossref, journal ranking).
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pubmed-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries bounds retries on HTTP 429/503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// WalkConfig holds settings for the streaming walker.
type WalkConfig struct {
	// MaxArticleBytes caps the size of one PubmedArticle element. Larger
	// articles are reported as per-article errors (default 64 MiB).
	MaxArticleBytes int `json:"max_article_bytes" yaml:"max_article_bytes"`
}

// TokenizerName selects the token counter used by the splitter.
type TokenizerName string

const (
	TokenizerWords      TokenizerName = "words"
	TokenizerP50kBase   TokenizerName = "p50k_base"
	TokenizerCl100kBase TokenizerName = "cl100k_base"
)

// SplitConfig holds settings for abstract chunking.
type SplitConfig struct {
	// Enabled turns chunking on (default true).
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxTokens is the token budget per chunk (default 500).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Tokenizer selects the token counter (default p50k_base).
	Tokenizer TokenizerName `json:"tokenizer" yaml:"tokenizer"`
}

// EnrichConfig holds settings for the optional enrichment lookups.
type EnrichConfig struct {
	HTTPConfig `yaml:",inline"`

	// CitationCount enables the Crossref citation count lookup.
	CitationCount bool `json:"citation_count" yaml:"citation_count"`

	// JournalRanking enables the journal ranking lookup.
	JournalRanking bool `json:"journal_ranking" yaml:"journal_ranking"`

	// Mailto is sent to Crossref for the polite pool.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty"`

	// RankingCacheSize bounds the journal ranking LRU cache (default 128).
	RankingCacheSize int `json:"ranking_cache_size" yaml:"ranking_cache_size"`
}

// FetchConfig holds settings for single-article retrieval from E-utilities.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey is an optional NCBI API key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Email identifies the caller to NCBI.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// Tool identifies the calling tool to NCBI (default "pubmed-engine").
	Tool string `json:"tool" yaml:"tool"`
}

// OutputFormat selects the record sink.
type OutputFormat string

const (
	OutputJSONDir  OutputFormat = "jsondir"
	OutputJSONL    OutputFormat = "jsonl"
	OutputCSL      OutputFormat = "csl"
	OutputSQLite   OutputFormat = "sqlite"
	OutputPostgres OutputFormat = "postgres"
)

// OutputConfig holds settings for the record sink.
type OutputConfig struct {
	// Format selects the sink (default jsondir).
	Format OutputFormat `json:"format" yaml:"format"`

	// Path is the output directory (jsondir), file (jsonl, csl, sqlite),
	// or "-" for stdout where supported.
	Path string `json:"path" yaml:"path"`

	// DSN is the Postgres connection string for the postgres sink.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// BatchConfig holds settings for the multi-file batch driver.
type BatchConfig struct {
	// Workers is the number of files processed concurrently (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// Dedupe drops repeated PMIDs within one source file.
	Dedupe bool `json:"dedupe" yaml:"dedupe"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Walk   WalkConfig   `json:"walk" yaml:"walk"`
	Split  SplitConfig  `json:"split" yaml:"split"`
	Enrich EnrichConfig `json:"enrich" yaml:"enrich"`
	Fetch  FetchConfig  `json:"fetch" yaml:"fetch"`
	Output OutputConfig `json:"output" yaml:"output"`
	Batch  BatchConfig  `json:"batch" yaml:"batch"`
}
