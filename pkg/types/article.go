// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pubmed-engine pipeline:
// the normalized article record produced by the assembler, the abstract
// chunks derived from it, and the stage configuration structs.
package types

// Author identifies an article author or collective.
type Author struct {
	// Name is the display name: "ForeName LastName", or the collective name.
	Name string `json:"name" yaml:"name"`

	// Affiliation is the first listed institutional affiliation.
	Affiliation string `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`

	LastName string `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	ForeName string `json:"fore_name,omitempty" yaml:"fore_name,omitempty"`
	Initials string `json:"initials,omitempty" yaml:"initials,omitempty"`
}

// ArticleID is one entry of the PubmedData article id list (pubmed, doi, pmc, pii, ...).
type ArticleID struct {
	IDType string `json:"id_type" yaml:"id_type"`
	Value  string `json:"value" yaml:"value"`
}

// PublicationType is a MeSH publication type with its descriptor UI.
type PublicationType struct {
	UI   string `json:"ui,omitempty" yaml:"ui,omitempty"`
	Name string `json:"name" yaml:"name"`
}

// HistoryDate is one PubMedPubDate entry of the article history.
type HistoryDate struct {
	// Status is the PubStatus attribute (received, accepted, pubmed, medline, entrez, ...).
	Status string `json:"status" yaml:"status"`
	Year   string `json:"year,omitempty" yaml:"year,omitempty"`
	Month  string `json:"month,omitempty" yaml:"month,omitempty"`
	Day    string `json:"day,omitempty" yaml:"day,omitempty"`
}

// AbstractSection is one AbstractText element of a structured abstract.
type AbstractSection struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Text  string `json:"text" yaml:"text"`
}

// Reference is one entry of the PubmedData reference list.
type Reference struct {
	Citation string `json:"citation,omitempty" yaml:"citation,omitempty"`
	PMID     string `json:"pmid,omitempty" yaml:"pmid,omitempty"`
	DOI      string `json:"doi,omitempty" yaml:"doi,omitempty"`
}

// JournalRanking holds the ranking row scraped for a journal.
type JournalRanking struct {
	// Journal is the journal name as listed by the ranking source.
	Journal string `json:"journal" yaml:"journal"`

	// ImpactFactor is nil when the source lists none.
	ImpactFactor *float64 `json:"impact_factor,omitempty" yaml:"impact_factor,omitempty"`

	// Metrics holds the remaining numeric columns (citations, articles, h-index, ...)
	// with K/M suffixes expanded.
	Metrics map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// MetaInfo groups the bibliographic metadata of an article. Every field is
// optional; absent fields are left at their zero value.
type MetaInfo struct {
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	Journal         string `json:"journal,omitempty" yaml:"journal,omitempty"`
	JournalAbbrev   string `json:"journal_abbrev,omitempty" yaml:"journal_abbrev,omitempty"`
	ISSN            string `json:"issn,omitempty" yaml:"issn,omitempty"`
	PublicationDate string `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	DOI             string `json:"doi,omitempty" yaml:"doi,omitempty"`
	PMC             string `json:"pmc,omitempty" yaml:"pmc,omitempty"`

	ArticleIDs       []ArticleID       `json:"article_ids,omitempty" yaml:"article_ids,omitempty"`
	Keywords         []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Languages        []string          `json:"languages,omitempty" yaml:"languages,omitempty"`
	Volume           string            `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue            string            `json:"issue,omitempty" yaml:"issue,omitempty"`
	Pages            string            `json:"pages,omitempty" yaml:"pages,omitempty"`
	PublicationTypes []PublicationType `json:"publication_types,omitempty" yaml:"publication_types,omitempty"`
	DatesHistory     []HistoryDate     `json:"dates_history,omitempty" yaml:"dates_history,omitempty"`

	// CitationCount is filled by the optional Crossref enrichment.
	CitationCount *int `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`

	// JournalRanking is filled by the optional journal ranking enrichment.
	JournalRanking *JournalRanking `json:"journal_ranking,omitempty" yaml:"journal_ranking,omitempty"`
}

// ArticleRecord is the normalized output for one PubmedArticle. PMID is
// always non-empty for records produced by the assembler. A record is not
// modified after assembly.
type ArticleRecord struct {
	PMID     string   `json:"pmid" yaml:"pmid"`
	MetaInfo MetaInfo `json:"meta_info" yaml:"meta_info"`

	// Abstract is the plain-text abstract; structured sections are joined
	// in document order as "LABEL: text" separated by newlines.
	Abstract         string            `json:"abstract" yaml:"abstract"`
	AbstractSections []AbstractSection `json:"abstract_sections,omitempty" yaml:"abstract_sections,omitempty"`

	Authors []Author `json:"authors" yaml:"authors"`

	// MeshTerms holds "UI:Descriptor[*] / UI:Qualifier[*]" strings, unique,
	// in document order. A trailing "*" marks a major topic.
	MeshTerms []string `json:"mesh_terms" yaml:"mesh_terms"`

	References []Reference `json:"references,omitempty" yaml:"references,omitempty"`
}

// AbstractChunk is a token-bounded slice of an abstract. Text is the exact
// byte range [Start, End) of the abstract, so concatenating the chunks of one
// abstract in ChunkIndex order yields the abstract unchanged.
type AbstractChunk struct {
	PMID       string `json:"pmid" yaml:"pmid"`
	ChunkIndex int    `json:"chunk_index" yaml:"chunk_index"`
	Text       string `json:"text" yaml:"text"`
	TokenCount int    `json:"token_count" yaml:"token_count"`
	Start      int    `json:"start" yaml:"start"`
	End        int    `json:"end" yaml:"end"`
}

// ChunkedRecord pairs a record with the chunks derived from its abstract.
// Chunks is nil when splitting is disabled.
type ChunkedRecord struct {
	ArticleRecord `yaml:",inline"`

	Chunks []AbstractChunk `json:"abstract_chunks,omitempty" yaml:"abstract_chunks,omitempty"`
}
