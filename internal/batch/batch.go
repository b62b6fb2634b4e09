// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch drives the pipeline over many PubMed files: walk, assemble,
// optionally chunk, and write to a sink, with several files in flight.
package batch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/pubmed-engine/internal/assemble"
	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/internal/sink"
	"github.com/pdiddy/pubmed-engine/internal/splitter"
	"github.com/pdiddy/pubmed-engine/internal/walker"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// Stdin is the path that reads from Options.Stdin.
const Stdin = "-"

// Options configures a Driver.
type Options struct {
	Assembler *assemble.Assembler
	Sink      sink.Sink

	// Splitter chunks abstracts; nil writes records without chunks.
	Splitter  *splitter.Splitter
	MaxTokens int

	Walk    walker.Options
	Workers int
	Dedupe  bool

	Stdin    io.Reader
	Progress io.Writer
	Logger   *slog.Logger
}

// Summary holds counts from one Run.
type Summary struct {
	RunID         string
	Started       time.Time
	Finished      time.Time
	Files         int
	Failed        int
	Records       int
	ArticleErrors int
	Duplicates    int
}

// Articles returns the number of article positions seen.
func (s Summary) Articles() int {
	return s.Records + s.ArticleErrors + s.Duplicates
}

// Driver runs the pipeline over a list of files.
type Driver struct {
	opts Options
	log  *slog.Logger
	out  io.Writer
}

// New returns a Driver. Workers defaults to 1.
func New(opts Options) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = splitter.DefaultMaxTokens
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	d := &Driver{opts: opts, log: opts.Logger, out: opts.Progress}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.out == nil {
		d.out = io.Discard
	}
	return d
}

type fileStats struct {
	records, articleErrors, duplicates int
}

// Run processes paths concurrently. A file whose source fails is counted in
// Summary.Failed and the run continues. Sink errors and cancellation abort
// the run.
func (d *Driver) Run(ctx context.Context, paths []string) (Summary, error) {
	summary := Summary{
		RunID:   ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String(),
		Started: time.Now(),
	}
	log := d.log.With("run", summary.RunID)
	log.Info("batch started", "files", len(paths), "workers", d.opts.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, path := range paths {
		g.Go(func() error {
			st, err := d.runFile(gctx, path, log.With("file", path))

			mu.Lock()
			defer mu.Unlock()
			summary.Files++
			summary.Records += st.records
			summary.ArticleErrors += st.articleErrors
			summary.Duplicates += st.duplicates

			var se *errs.SourceError
			switch {
			case err == nil:
				fmt.Fprintf(d.out, "parsed  %s (%d records, %d article errors)\n", path, st.records, st.articleErrors)
			case errors.As(err, &se) && gctx.Err() == nil:
				summary.Failed++
				fmt.Fprintf(d.out, "failed  %s: %v\n", path, err)
				log.Warn("source failed", "file", path, "error", err)
			default:
				return fmt.Errorf("processing %s: %w", path, err)
			}
			return nil
		})
	}
	err := g.Wait()
	summary.Finished = time.Now()

	fmt.Fprintf(d.out, "\nfiles: %d, records: %d, article errors: %d, duplicates: %d, failed: %d\n",
		summary.Files, summary.Records, summary.ArticleErrors, summary.Duplicates, summary.Failed)
	log.Info("batch finished",
		"records", summary.Records, "article_errors", summary.ArticleErrors,
		"duplicates", summary.Duplicates, "failed", summary.Failed,
		"elapsed", summary.Finished.Sub(summary.Started))

	if rr, ok := d.opts.Sink.(sink.RunRecorder); ok && err == nil {
		if rerr := rr.RecordRun(ctx, sink.Run{
			ID:            summary.RunID,
			Started:       summary.Started,
			Finished:      summary.Finished,
			Files:         summary.Files,
			Records:       summary.Records,
			ArticleErrors: summary.ArticleErrors,
			Duplicates:    summary.Duplicates,
			Failed:        summary.Failed,
		}); rerr != nil {
			log.Warn("run summary not stored", "error", rerr)
		}
	}
	return summary, err
}

func (d *Driver) runFile(ctx context.Context, path string, log *slog.Logger) (fileStats, error) {
	var st fileStats
	seen := make(map[uint64]struct{})

	handle := func(res assemble.Result) error {
		if res.Err != nil {
			st.articleErrors++
			log.Warn("article skipped", "index", res.Index, "offset", res.Offset, "error", res.Err)
			return nil
		}
		if d.opts.Dedupe {
			h := xxh3.HashString(res.Record.PMID)
			if _, dup := seen[h]; dup {
				st.duplicates++
				log.Debug("duplicate pmid", "pmid", res.Record.PMID, "index", res.Index)
				return nil
			}
			seen[h] = struct{}{}
		}

		rec, err := d.chunk(res.Record)
		if err != nil {
			return err
		}
		if err := d.opts.Sink.Write(ctx, rec); err != nil {
			return fmt.Errorf("writing %s: %w", rec.PMID, err)
		}
		st.records++
		return nil
	}

	if path == Stdin {
		w, err := walker.New(d.opts.Stdin, d.opts.Walk)
		if err != nil {
			return st, err
		}
		defer w.Close()
		return st, d.opts.Assembler.Stream(ctx, w, handle)
	}
	return st, d.opts.Assembler.Walk(ctx, path, d.opts.Walk, handle)
}

func (d *Driver) chunk(rec *types.ArticleRecord) (types.ChunkedRecord, error) {
	if d.opts.Splitter == nil {
		return types.ChunkedRecord{ArticleRecord: *rec}, nil
	}
	return d.opts.Splitter.ChunkRecord(rec, d.opts.MaxTokens)
}

// ExpandPaths replaces directories with the *.xml and *.xml.gz files they
// contain, sorted by name. Other arguments pass through unchanged.
func ExpandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if arg == Stdin {
			paths = append(paths, arg)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			if strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".xml.gz") {
				found = append(found, filepath.Join(arg, name))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
