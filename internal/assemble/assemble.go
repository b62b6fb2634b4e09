// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble turns PubmedArticle subtrees into article records.
//
// The pmid is the only required field: without it there is no record and
// the caller gets an *errs.ArticleError. Every other field is best effort. A
// field that fails is logged and left absent, and a failed enrichment
// lookup leaves its field nil.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/extract"
	"github.com/pdiddy/pubmed-engine/internal/walker"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// CitationCounter looks up how often a DOI has been cited. ok is false when
// the DOI is unknown to the source.
type CitationCounter interface {
	CitationCount(ctx context.Context, doi string) (count int, ok bool, err error)
}

// JournalRanker looks up ranking data for a journal name. It returns
// errs.ErrNotFound when the journal is not listed.
type JournalRanker interface {
	JournalRanking(ctx context.Context, journal string) (*types.JournalRanking, error)
}

// Options configures an Assembler.
type Options struct {
	// Fields to extract. Nil selects extract.Default().
	Fields []extract.Field

	// Citations enables citation count enrichment when set.
	Citations CitationCounter

	// Rankings enables journal ranking enrichment when set.
	Rankings JournalRanker

	Logger *slog.Logger
}

// Assembler composes field extractors into records. It holds no per-article
// state and may be shared by concurrent callers when its collaborators can.
type Assembler struct {
	fields    []extract.Field
	citations CitationCounter
	rankings  JournalRanker
	log       *slog.Logger
}

// New returns an Assembler.
func New(opts Options) *Assembler {
	a := &Assembler{
		fields:    opts.Fields,
		citations: opts.Citations,
		rankings:  opts.Rankings,
		log:       opts.Logger,
	}
	if a.fields == nil {
		a.fields = extract.Default()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Assemble builds the record for one PubmedArticle element. The element is
// only read during the call.
func (a *Assembler) Assemble(ctx context.Context, article *etree.Element) (*types.ArticleRecord, error) {
	pmid, err := extract.PMID(article)
	if err != nil {
		return nil, &errs.ArticleError{Err: err}
	}

	log := a.log.With("pmid", pmid)
	rec := &types.ArticleRecord{PMID: pmid}
	for _, f := range a.fields {
		if err := f.Extract(article, rec); err != nil {
			log.Debug("field left empty", "field", f.Name(), "error", err)
		}
	}
	if rec.Authors == nil {
		rec.Authors = []types.Author{}
	}
	if rec.MeshTerms == nil {
		rec.MeshTerms = []string{}
	}

	a.enrich(ctx, rec, log)
	return rec, nil
}

func (a *Assembler) enrich(ctx context.Context, rec *types.ArticleRecord, log *slog.Logger) {
	m := &rec.MetaInfo

	if a.citations != nil && m.DOI != "" {
		n, ok, err := a.citations.CitationCount(ctx, m.DOI)
		switch {
		case err != nil:
			log.Warn("citation count unavailable", "doi", m.DOI, "error", err)
		case ok:
			m.CitationCount = &n
		}
	}

	if a.rankings != nil && m.Journal != "" {
		r, err := a.rankings.JournalRanking(ctx, m.Journal)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			log.Debug("journal not ranked", "journal", m.Journal)
		case err != nil:
			log.Warn("journal ranking unavailable", "journal", m.Journal, "error", err)
		case r != nil:
			m.JournalRanking = r
		}
	}
}

// ParseDocument assembles the first article of a complete PubMed XML
// document, plain or gzip-compressed, such as an efetch response. It returns
// errs.ErrNotFound when the document holds no article.
func (a *Assembler) ParseDocument(ctx context.Context, data []byte) (*types.ArticleRecord, error) {
	w, err := walker.New(bytes.NewReader(data), walker.Options{})
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if !w.Next() {
		if err := w.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("parsing document: %w", errs.ErrNotFound)
	}
	art := w.Article()
	if art.Err != nil {
		return nil, art.Err
	}
	return a.Assemble(ctx, art.Root)
}

// Result is one position of a streamed source: a record or the
// per-article error for that position.
type Result struct {
	Index  int
	Offset int64
	Record *types.ArticleRecord
	Err    error
}

// Stream assembles every article of w in order and hands each result to fn.
// Per-article failures arrive as results with Err set; Stream itself only
// fails on source errors, cancellation, or an error from fn. Returning
// errs.ErrStop from fn ends the stream without error.
func (a *Assembler) Stream(ctx context.Context, w *walker.Walker, fn func(Result) error) error {
	return w.Each(ctx, func(art walker.Article) error {
		return fn(a.result(ctx, art))
	})
}

// Walk opens path and streams it.
func (a *Assembler) Walk(ctx context.Context, path string, opts walker.Options, fn func(Result) error) error {
	return walker.Walk(ctx, path, opts, func(art walker.Article) error {
		return fn(a.result(ctx, art))
	})
}

func (a *Assembler) result(ctx context.Context, art walker.Article) Result {
	res := Result{Index: art.Index, Offset: art.Offset}
	if art.Err != nil {
		res.Err = art.Err
		return res
	}

	rec, err := a.Assemble(ctx, art.Root)
	if err != nil {
		var ae *errs.ArticleError
		if errors.As(err, &ae) {
			ae.Index, ae.Offset = art.Index, art.Offset
		}
		res.Err = err
		return res
	}
	res.Record = rec
	return res
}
