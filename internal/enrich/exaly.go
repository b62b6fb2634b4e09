// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/httputil"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// exalyAPIBase is declared as a var so tests can swap in an httptest URL.
var exalyAPIBase = "https://exaly.com/journals/"

// DefaultRankingCacheSize is the LRU size used when the config leaves it unset.
const DefaultRankingCacheSize = 128

// Columns dropped from the scraped table.
var ignoredColumns = map[string]bool{"star": true, "#": true, "": true}

const (
	journalColumn      = "journal"
	impactFactorColumn = "Impact Factor"
)

// Exaly looks up journal metrics from the exaly.com journal search table.
// Lookups, including misses, are cached per case-folded journal name.
type Exaly struct {
	http  *http.Client
	cfg   types.EnrichConfig
	log   *slog.Logger
	cache *lru.Cache[string, *types.JournalRanking]
}

// NewExaly returns an exaly client with an LRU cache of cfg.RankingCacheSize
// entries.
func NewExaly(client *http.Client, cfg types.EnrichConfig, log *slog.Logger) (*Exaly, error) {
	if client == nil {
		client = httputil.NewClient(cfg.Timeout)
	}
	if log == nil {
		log = slog.Default()
	}
	size := cfg.RankingCacheSize
	if size <= 0 {
		size = DefaultRankingCacheSize
	}
	cache, err := lru.New[string, *types.JournalRanking](size)
	if err != nil {
		return nil, fmt.Errorf("creating ranking cache: %w", err)
	}
	return &Exaly{http: client, cfg: cfg, log: log, cache: cache}, nil
}

// JournalRanking returns the metrics row for journal. It prefers the row
// whose journal name matches exactly (ignoring case and "&" vs "and") and
// otherwise takes the first result. errs.ErrNotFound means the search
// returned no table rows.
func (e *Exaly) JournalRanking(ctx context.Context, journal string) (*types.JournalRanking, error) {
	key := foldName(journal)
	if key == "" {
		return nil, fmt.Errorf("empty journal name: %w", errs.ErrNotFound)
	}
	if r, ok := e.cache.Get(key); ok {
		if r == nil {
			return nil, fmt.Errorf("journal %q: %w", journal, errs.ErrNotFound)
		}
		return r, nil
	}

	query := strings.ReplaceAll(strings.TrimSpace(journal), "&", "and")
	body, err := httputil.Get(ctx, e.http, exalyAPIBase+"?q="+url.QueryEscape(query), e.cfg.UserAgent, e.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("exaly search %q: %w", journal, err)
	}

	rows, err := parseTable(body)
	if err != nil {
		return nil, fmt.Errorf("parsing exaly results for %q: %w", journal, err)
	}
	r, err := pickRanking(rows, key)
	if errors.Is(err, errs.ErrNotFound) {
		e.cache.Add(key, nil)
		return nil, fmt.Errorf("journal %q: %w", journal, err)
	}
	if err != nil {
		return nil, err
	}
	e.log.Debug("journal ranked", "journal", journal, "matched", r.Journal)
	e.cache.Add(key, r)
	return r, nil
}

// foldName normalizes a journal name for comparison and cache keys.
func foldName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(strings.ReplaceAll(s, "&", "and"))
}

// pickRanking selects a data row and converts it. rows[0] is the header row.
func pickRanking(rows [][]string, key string) (*types.JournalRanking, error) {
	if len(rows) < 2 {
		return nil, errs.ErrNotFound
	}
	headers := rows[0]
	nameCol := 0
	for i, h := range headers {
		if strings.EqualFold(h, journalColumn) {
			nameCol = i
			break
		}
	}

	row := rows[1]
	for _, candidate := range rows[1:] {
		if nameCol < len(candidate) && foldName(candidate[nameCol]) == key {
			row = candidate
			break
		}
	}

	r := &types.JournalRanking{Metrics: make(map[string]float64)}
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		switch {
		case i == nameCol:
			r.Journal = row[i]
		case ignoredColumns[strings.ToLower(h)]:
		case h == impactFactorColumn:
			if v, err := strconv.ParseFloat(strings.ReplaceAll(row[i], ",", ""), 64); err == nil {
				r.ImpactFactor = &v
			}
		default:
			if v, ok := parseMetric(row[i]); ok {
				r.Metrics[h] = v
			}
		}
	}
	return r, nil
}

// parseMetric reads numbers like "1,234", "8.9K" and "4.2M".
func parseMetric(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult, s = 1e3, s[:len(s)-1]
	case 'M', 'm':
		mult, s = 1e6, s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}

// parseTable returns the cell texts of every row of the first <table>.
func parseTable(body []byte) ([][]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	table := findElement(doc, "table")
	if table == nil {
		return nil, nil
	}

	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "th" || c.Data == "td") {
					cells = append(cells, nodeText(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
