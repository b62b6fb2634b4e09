// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich implements the optional lookups the assembler uses to add
// citation counts and journal rankings to a record.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/pubmed-engine/internal/httputil"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// crossrefAPIBase is declared as a var so tests can swap in an httptest URL.
var crossrefAPIBase = "https://api.crossref.org/works/"

// doiPattern matches bare DOIs: "10.1038/s41586-022-05543-x".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// crossrefResponse is the subset of a Crossref works response we read.
type crossrefResponse struct {
	Message struct {
		DOI                 string `json:"DOI"`
		IsReferencedByCount *int   `json:"is-referenced-by-count"`
	} `json:"message"`
}

// Crossref looks up citation counts by DOI.
type Crossref struct {
	http *http.Client
	cfg  types.EnrichConfig
	log  *slog.Logger
}

// NewCrossref returns a Crossref client. A nil http client gets one built
// from cfg.Timeout; a nil logger uses slog.Default().
func NewCrossref(client *http.Client, cfg types.EnrichConfig, log *slog.Logger) *Crossref {
	if client == nil {
		client = httputil.NewClient(cfg.Timeout)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Crossref{http: client, cfg: cfg, log: log}
}

// CitationCount returns Crossref's is-referenced-by-count for doi. The
// boolean is false when the DOI is malformed, unknown to Crossref, or the
// response carries no count. Transport failures are returned as errors.
func (c *Crossref) CitationCount(ctx context.Context, doi string) (int, bool, error) {
	doi = normalizeDOI(doi)
	if !doiPattern.MatchString(doi) {
		c.log.Debug("skipping malformed doi", "doi", doi)
		return 0, false, nil
	}

	u := crossrefAPIBase + doi
	if c.cfg.Mailto != "" {
		u += "?mailto=" + url.QueryEscape(c.cfg.Mailto)
	}

	body, err := httputil.Get(ctx, c.http, u, c.cfg.UserAgent, c.cfg.MaxRetries)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("crossref %s: %w", doi, err)
	}

	var cr crossrefResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return 0, false, fmt.Errorf("decoding crossref response for %s: %w", doi, err)
	}
	if cr.Message.IsReferencedByCount == nil {
		return 0, false, nil
	}
	return *cr.Message.IsReferencedByCount, true, nil
}

// normalizeDOI strips resolver prefixes and surrounding whitespace.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			return doi[len(prefix):]
		}
	}
	return doi
}
