// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// JSONDir writes one indented <pmid>.json file per record. A repeated PMID
// overwrites the earlier file.
type JSONDir struct {
	dir string
}

// NewJSONDir creates dir if needed.
func NewJSONDir(dir string) (*JSONDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &JSONDir{dir: dir}, nil
}

func (s *JSONDir) Write(ctx context.Context, rec types.ChunkedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", rec.PMID, err)
	}
	data = append(data, '\n')

	// Temp file plus rename: a reader sees the old file or the whole new one.
	path := filepath.Join(s.dir, rec.PMID+".json")
	tmp, err := os.CreateTemp(s.dir, "."+rec.PMID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *JSONDir) Close() error { return nil }

// JSONL writes one compact JSON object per line.
type JSONL struct {
	mu     sync.Mutex
	bw     *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONL writes to w. closer, when non-nil, is closed by Close.
func NewJSONL(w io.Writer, closer io.Closer) *JSONL {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONL{bw: bw, enc: enc, closer: closer}
}

func (s *JSONL) Write(ctx context.Context, rec types.ChunkedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding %s: %w", rec.PMID, err)
	}
	return nil
}

// Close flushes buffered lines and closes the underlying file.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.bw.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}
