// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package efetch retrieves PubMed XML by PMID from NCBI E-utilities.
package efetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/httputil"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// efetchAPIBase is the E-utilities efetch endpoint. Declared as a var so
// tests can point it at an httptest server.
var efetchAPIBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

// MaxBatch is the largest id list sent in one request.
const MaxBatch = 200

const defaultTool = "pubmed-engine"

// Client fetches PubmedArticleSet documents.
type Client struct {
	http *http.Client
	cfg  types.FetchConfig
}

// New returns a client. A nil http client gets one built from cfg.Timeout.
func New(client *http.Client, cfg types.FetchConfig) *Client {
	if client == nil {
		client = httputil.NewClient(cfg.Timeout)
	}
	if cfg.Tool == "" {
		cfg.Tool = defaultTool
	}
	return &Client{http: client, cfg: cfg}
}

// Fetch returns the raw XML for one article. It returns errs.ErrInvalidInput
// for a malformed pmid and errs.ErrNotFound when NCBI has no such article.
func (c *Client) Fetch(ctx context.Context, pmid string) ([]byte, error) {
	return c.FetchBatch(ctx, []string{pmid})
}

// FetchBatch returns one PubmedArticleSet holding every article of pmids
// that NCBI knows. At most MaxBatch ids are accepted per call.
func (c *Client) FetchBatch(ctx context.Context, pmids []string) ([]byte, error) {
	if len(pmids) == 0 || len(pmids) > MaxBatch {
		return nil, fmt.Errorf("fetching %d ids: %w", len(pmids), errs.ErrInvalidInput)
	}
	ids := make([]string, len(pmids))
	for i, p := range pmids {
		p = strings.TrimSpace(p)
		if !isPMID(p) {
			return nil, fmt.Errorf("pmid %q: %w", p, errs.ErrInvalidInput)
		}
		ids[i] = p
	}

	body, err := httputil.Get(ctx, c.http, c.url(ids), c.cfg.UserAgent, c.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("efetch %s: %w", strings.Join(ids, ","), err)
	}

	// Unknown ids come back as 200 with an empty set or an <ERROR> body.
	if !bytes.Contains(body, []byte("<PubmedArticle>")) && !bytes.Contains(body, []byte("<PubmedArticle ")) {
		return nil, fmt.Errorf("efetch %s: %w", strings.Join(ids, ","), errs.ErrNotFound)
	}
	return body, nil
}

func (c *Client) url(ids []string) string {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")
	params.Set("tool", c.cfg.Tool)
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return efetchAPIBase + "?" + params.Encode()
}

func isPMID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
