// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// CSLItem is a bibliographic entry in CSL-YAML, consumable by Pandoc and
// reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title,omitempty"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	ContainerShort string    `yaml:"container-title-short,omitempty"`
	ISSN           string    `yaml:"ISSN,omitempty"`
	Volume         string    `yaml:"volume,omitempty"`
	Issue          string    `yaml:"issue,omitempty"`
	Page           string    `yaml:"page,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
	Keyword        string    `yaml:"keyword,omitempty"`
	Language       string    `yaml:"language,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	PMID           string    `yaml:"PMID"`
	PMCID          string    `yaml:"PMCID,omitempty"`
}

// CSLName is a person's name, or a literal for collectives.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// CSL streams records as a single CSL-YAML list. Each record becomes one
// list item, so the output is a valid document after every write.
type CSL struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewCSL writes to w. closer, when non-nil, is closed by Close.
func NewCSL(w io.Writer, closer io.Closer) *CSL {
	return &CSL{w: w, closer: closer}
}

func (s *CSL) Write(ctx context.Context, rec types.ChunkedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal([]CSLItem{ToCSLItem(rec.ArticleRecord)})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rec.PMID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", rec.PMID, err)
	}
	return nil
}

func (s *CSL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// ToCSLItem converts an ArticleRecord to a CSL item keyed by "pmid:<PMID>".
func ToCSLItem(rec types.ArticleRecord) CSLItem {
	m := rec.MetaInfo
	item := CSLItem{
		ID:             "pmid:" + rec.PMID,
		Type:           "article-journal",
		Title:          m.Title,
		ContainerTitle: m.Journal,
		ContainerShort: m.JournalAbbrev,
		ISSN:           m.ISSN,
		Volume:         m.Volume,
		Issue:          m.Issue,
		Page:           m.Pages,
		Abstract:       rec.Abstract,
		Keyword:        strings.Join(m.Keywords, ", "),
		DOI:            m.DOI,
		PMID:           rec.PMID,
		PMCID:          m.PMC,
		Issued:         parsePubDate(m.PublicationDate),
	}
	if len(m.Languages) > 0 {
		item.Language = m.Languages[0]
	}

	for _, a := range rec.Authors {
		item.Author = append(item.Author, cslName(a))
	}
	return item
}

// cslName uses the structured name parts when present. Collectives and
// name-only authors become literals.
func cslName(a types.Author) CSLName {
	if a.LastName != "" {
		return CSLName{Family: a.LastName, Given: a.ForeName}
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return CSLName{}
	}
	return CSLName{Literal: name}
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// parsePubDate reads "2023 Jan 05", "2023 01 05", "2004 Jan-Feb" or
// "2004". Month ranges keep their first month. Nil when no year is found.
func parsePubDate(s string) *CSLDate {
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts[0]) < 4 {
		return nil
	}
	year, err := strconv.Atoi(parts[0][:4])
	if err != nil {
		return nil
	}
	date := []int{year}
	if len(parts) > 1 {
		if month := parseMonth(parts[1]); month > 0 {
			date = append(date, month)
			if len(parts) > 2 {
				if day, err := strconv.Atoi(parts[2]); err == nil && day >= 1 && day <= 31 {
					date = append(date, day)
				}
			}
		}
	}
	return &CSLDate{DateParts: [][]int{date}}
}

func parseMonth(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return n
		}
		return 0
	}
	if len(s) >= 3 {
		return monthNames[strings.ToLower(s[:3])]
	}
	return 0
}
