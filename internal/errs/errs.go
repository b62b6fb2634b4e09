// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package errs defines the error taxonomy shared by the extraction pipeline.
//
// A SourceError makes the whole input unreadable and stops a run. An
// ArticleError affects one article and is reported inline while iteration
// continues. Missing optional fields are not errors at all.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
var (
	ErrMissingPMID      = errors.New("missing pmid")
	ErrInvalidPMID      = errors.New("invalid pmid")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidMaxTokens = errors.New("max tokens must be positive")
	ErrArticleTooLarge  = errors.New("article exceeds size limit")
	ErrTruncated        = errors.New("truncated article")

	// ErrStop is returned by a visitor callback to end iteration early
	// without reporting an error.
	ErrStop = errors.New("stop iteration")
)

// SourceError reports input that cannot be read as a PubMed XML document.
type SourceError struct {
	// Op names the failing step ("open", "gzip", "read", "prolog").
	Op string

	// Offset is the decompressed byte offset where the failure was observed.
	Offset int64

	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s at byte %d: %v", e.Op, e.Offset, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ArticleError reports a failure confined to one article.
type ArticleError struct {
	// Index is the zero-based position of the article in the source.
	Index int

	// Offset is the decompressed byte offset of the article start tag.
	Offset int64

	// PMID is set when the identifier was resolved before the failure.
	PMID string

	Err error
}

func (e *ArticleError) Error() string {
	if e.PMID != "" {
		return fmt.Sprintf("article %d (pmid %s) at byte %d: %v", e.Index, e.PMID, e.Offset, e.Err)
	}
	return fmt.Sprintf("article %d at byte %d: %v", e.Index, e.Offset, e.Err)
}

func (e *ArticleError) Unwrap() error { return e.Err }

// IsSource reports whether err is, or wraps, a SourceError.
func IsSource(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// IsArticle reports whether err is, or wraps, an ArticleError.
func IsArticle(err error) bool {
	var ae *ArticleError
	return errors.As(err, &ae)
}
