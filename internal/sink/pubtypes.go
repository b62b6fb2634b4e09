// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// PubTypeCSV writes one CSV row per record: pmid, pmc_id and the
// publication types as "UI:Name" joined by ";".
type PubTypeCSV struct {
	mu     sync.Mutex
	cw     *csv.Writer
	closer io.Closer
	header bool
}

// NewPubTypeCSV writes to w. closer, when non-nil, is closed by Close.
func NewPubTypeCSV(w io.Writer, closer io.Closer) *PubTypeCSV {
	return &PubTypeCSV{cw: csv.NewWriter(w), closer: closer}
}

func (s *PubTypeCSV) Write(ctx context.Context, rec types.ChunkedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pts := make([]string, len(rec.MetaInfo.PublicationTypes))
	for i, pt := range rec.MetaInfo.PublicationTypes {
		pts[i] = pt.UI + ":" + pt.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.header {
		if err := s.cw.Write([]string{"pmid", "pmc_id", "publication_types"}); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		s.header = true
	}
	if err := s.cw.Write([]string{rec.PMID, rec.MetaInfo.PMC, strings.Join(pts, ";")}); err != nil {
		return fmt.Errorf("writing %s: %w", rec.PMID, err)
	}
	return nil
}

// Close flushes pending rows and closes the underlying file.
func (s *PubTypeCSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cw.Flush()
	err := s.cw.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}

// OpenPubTypeCSV opens path, or stdout for "" and "-".
func OpenPubTypeCSV(path string, stdout io.Writer) (*PubTypeCSV, error) {
	w, closer, err := openStream(path, stdout)
	if err != nil {
		return nil, err
	}
	return NewPubTypeCSV(w, closer), nil
}
