// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package splitter chunks abstracts into token-bounded runs of whole
// sentences.
//
// Chunks are verbatim byte ranges of the abstract, so concatenating the
// chunks of one abstract in order gives back the abstract unchanged. A chunk
// exceeds the budget only when it holds a single sentence that alone is over
// it; sentences are never cut.
package splitter

import (
	"fmt"
	"strings"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/sentence"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// DefaultMaxTokens is the chunk budget used by the CLI.
const DefaultMaxTokens = 500

// Splitter packs sentences greedily into chunks. It holds no mutable state
// and is safe for concurrent use when its counter is.
type Splitter struct {
	detector sentence.Detector
	counter  Counter
}

// New returns a splitter. A nil detector selects sentence.NewRules and a nil
// counter selects WordCounter.
func New(detector sentence.Detector, counter Counter) *Splitter {
	if detector == nil {
		detector = sentence.NewRules()
	}
	if counter == nil {
		counter = WordCounter{}
	}
	return &Splitter{detector: detector, counter: counter}
}

// Split chunks text for the article pmid. It returns errs.ErrInvalidMaxTokens
// when maxTokens is not positive, and an empty slice for blank text.
func (s *Splitter) Split(pmid, text string, maxTokens int) ([]types.AbstractChunk, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens %d: %w", maxTokens, errs.ErrInvalidMaxTokens)
	}
	if strings.TrimSpace(text) == "" {
		return []types.AbstractChunk{}, nil
	}

	spans := s.detector.Segment(text)
	if len(spans) == 0 {
		spans = []sentence.Span{{Start: 0, End: len(text)}}
	}
	chunks := make([]types.AbstractChunk, 0, 1)

	// Chunk bounds run contiguously from 0 to len(text) whatever spans the
	// detector returns.
	cur := types.AbstractChunk{PMID: pmid}
	open := false
	flush := func(end int) {
		cur.End = end
		cur.Text = text[cur.Start:cur.End]
		cur.ChunkIndex = len(chunks)
		chunks = append(chunks, cur)
		cur = types.AbstractChunk{PMID: pmid, Start: end}
		open = false
	}

	for _, sp := range spans {
		n := s.counter.Count(strings.TrimSpace(text[sp.Start:sp.End]))
		if open && cur.TokenCount+n > maxTokens {
			flush(sp.Start)
		}
		cur.TokenCount += n
		open = true
	}
	if open {
		flush(len(text))
	}
	return chunks, nil
}

// ChunkRecord splits the abstract of rec. The record is copied, not
// modified.
func (s *Splitter) ChunkRecord(rec *types.ArticleRecord, maxTokens int) (types.ChunkedRecord, error) {
	chunks, err := s.Split(rec.PMID, rec.Abstract, maxTokens)
	if err != nil {
		return types.ChunkedRecord{}, err
	}
	return types.ChunkedRecord{ArticleRecord: *rec, Chunks: chunks}, nil
}
