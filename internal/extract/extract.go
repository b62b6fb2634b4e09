// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls individual fields out of one PubmedArticle subtree.
//
// Every Field is independent of the others: it reads the subtree, writes
// only its own part of the record, and leaves that part untouched when the
// elements it looks for are absent. Fields never keep a reference to the
// subtree after Extract returns.
package extract

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// Field extracts one semantic field from a PubmedArticle element.
type Field interface {
	Name() string
	Extract(article *etree.Element, rec *types.ArticleRecord) error
}

type field struct {
	name string
	fn   func(*etree.Element, *types.ArticleRecord) error
}

func (f field) Name() string { return f.name }

func (f field) Extract(article *etree.Element, rec *types.ArticleRecord) error {
	return f.fn(article, rec)
}

// NewField adapts fn into a Field called name.
func NewField(name string, fn func(article *etree.Element, rec *types.ArticleRecord) error) Field {
	return field{name: name, fn: fn}
}

// The built-in fields.
var (
	Title            = NewField("title", extractTitle)
	Abstract         = NewField("abstract", extractAbstract)
	Journal          = NewField("journal", extractJournal)
	ArticleIDs       = NewField("article_ids", extractArticleIDs)
	Keywords         = NewField("keywords", extractKeywords)
	Languages        = NewField("languages", extractLanguages)
	Pagination       = NewField("pagination", extractPagination)
	PublicationTypes = NewField("publication_types", extractPublicationTypes)
	DatesHistory     = NewField("dates_history", extractDatesHistory)
	Authors          = NewField("authors", extractAuthors)
	MeshTerms        = NewField("mesh_terms", extractMeshTerms)
	References       = NewField("references", extractReferences)
)

// Default returns every built-in field.
func Default() []Field {
	return []Field{
		Title, Abstract, Journal, ArticleIDs, Keywords, Languages, Pagination,
		PublicationTypes, DatesHistory, Authors, MeshTerms, References,
	}
}

var pmidPaths = []string{
	"MedlineCitation/PMID",
	"PubmedData/ArticleIdList/ArticleId[@IdType='pubmed']",
}

// PMID returns the article identifier from MedlineCitation/PMID, falling
// back to the pubmed entry of the article id list. Only surrounding
// whitespace is removed. It returns errs.ErrMissingPMID when neither is
// present and errs.ErrInvalidPMID when the value is not all digits.
func PMID(article *etree.Element) (string, error) {
	if article == nil {
		return "", errs.ErrMissingPMID
	}
	for _, path := range pmidPaths {
		el := article.FindElement(path)
		if el == nil {
			continue
		}
		pmid := strings.TrimSpace(el.Text())
		if pmid == "" {
			continue
		}
		if !isDigits(pmid) {
			return "", fmt.Errorf("pmid %q: %w", pmid, errs.ErrInvalidPMID)
		}
		return pmid, nil
	}
	return "", errs.ErrMissingPMID
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
