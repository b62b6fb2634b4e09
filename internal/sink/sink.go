// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sink persists chunked article records. Each sink serializes its
// own writes so one sink may be shared by several batch workers.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// Sink receives records in the order a worker produces them.
type Sink interface {
	Write(ctx context.Context, rec types.ChunkedRecord) error
	Close() error
}

// Run summarizes one batch run for sinks that keep a run log.
type Run struct {
	ID            string
	Started       time.Time
	Finished      time.Time
	Files         int
	Records       int
	ArticleErrors int
	Duplicates    int
	Failed        int
}

// RunRecorder is implemented by sinks that store run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Open returns the sink selected by cfg.Format. stdout receives output for
// stream formats when cfg.Path is empty or "-".
func Open(ctx context.Context, cfg types.OutputConfig, stdout io.Writer) (Sink, error) {
	switch cfg.Format {
	case types.OutputJSONDir, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("jsondir sink needs an output directory")
		}
		return NewJSONDir(cfg.Path)
	case types.OutputJSONL:
		w, closer, err := openStream(cfg.Path, stdout)
		if err != nil {
			return nil, err
		}
		return NewJSONL(w, closer), nil
	case types.OutputCSL:
		w, closer, err := openStream(cfg.Path, stdout)
		if err != nil {
			return nil, err
		}
		return NewCSL(w, closer), nil
	case types.OutputSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite sink needs a database path")
		}
		return NewSQLite(cfg.Path)
	case types.OutputPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres sink needs a DSN")
		}
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}

// openStream opens path for writing, or returns stdout with no closer.
func openStream(path string, stdout io.Writer) (io.Writer, io.Closer, error) {
	if path == "" || path == "-" {
		return stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f, nil
}
