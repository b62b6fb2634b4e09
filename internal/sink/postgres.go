// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// pgConn is the subset of *pgx.Conn the Postgres sink uses.
type pgConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		pmid TEXT PRIMARY KEY,
		title TEXT,
		journal TEXT,
		publication_date TEXT,
		doi TEXT,
		abstract TEXT,
		citation_count INTEGER,
		record JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		pmid TEXT NOT NULL REFERENCES articles(pmid) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		PRIMARY KEY (pmid, chunk_index)
	)`,
	`CREATE TABLE IF NOT EXISTS mesh_terms (
		pmid TEXT NOT NULL REFERENCES articles(pmid) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		term TEXT NOT NULL,
		PRIMARY KEY (pmid, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mesh_terms_term ON mesh_terms(term)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started TIMESTAMPTZ NOT NULL,
		finished TIMESTAMPTZ NOT NULL,
		files INTEGER,
		records INTEGER,
		article_errors INTEGER,
		duplicates INTEGER,
		failed INTEGER
	)`,
}

const pgUpsertArticle = `INSERT INTO articles (pmid, title, journal, publication_date, doi, abstract, citation_count, record)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (pmid) DO UPDATE SET
	title = EXCLUDED.title, journal = EXCLUDED.journal,
	publication_date = EXCLUDED.publication_date, doi = EXCLUDED.doi,
	abstract = EXCLUDED.abstract, citation_count = EXCLUDED.citation_count,
	record = EXCLUDED.record`

// Postgres stores records in Postgres. The article record is kept whole as
// JSONB next to the queryable columns; chunks are bulk loaded with COPY.
type Postgres struct {
	mu   sync.Mutex
	conn pgConn
}

// NewPostgres connects to dsn and ensures the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	p, err := newPostgres(ctx, c)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	return p, nil
}

func newPostgres(ctx context.Context, conn pgConn) (*Postgres, error) {
	for _, stmt := range pgSchema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &Postgres{conn: conn}, nil
}

// Write upserts the article and replaces its chunks and MeSH terms in one
// transaction.
func (p *Postgres) Write(ctx context.Context, rec types.ChunkedRecord) error {
	record, err := json.Marshal(rec.ArticleRecord)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", rec.PMID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	m := rec.MetaInfo
	if _, err := tx.Exec(ctx, pgUpsertArticle,
		rec.PMID, m.Title, m.Journal, m.PublicationDate, m.DOI, rec.Abstract,
		m.CitationCount, record,
	); err != nil {
		return fmt.Errorf("upserting article %s: %w", rec.PMID, err)
	}

	for _, table := range []string{"chunks", "mesh_terms"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE pmid = $1`, rec.PMID); err != nil {
			return fmt.Errorf("clearing %s for %s: %w", table, rec.PMID, err)
		}
	}

	if len(rec.Chunks) > 0 {
		rows := make([][]any, len(rec.Chunks))
		for i, c := range rec.Chunks {
			rows[i] = []any{c.PMID, c.ChunkIndex, c.Text, c.TokenCount, c.Start, c.End}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"chunks"},
			[]string{"pmid", "chunk_index", "text", "token_count", "start_offset", "end_offset"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copying chunks for %s: %w", rec.PMID, err)
		}
	}

	if len(rec.MeshTerms) > 0 {
		rows := make([][]any, len(rec.MeshTerms))
		for i, term := range rec.MeshTerms {
			rows[i] = []any{rec.PMID, i, term}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"mesh_terms"},
			[]string{"pmid", "position", "term"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copying mesh terms for %s: %w", rec.PMID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s: %w", rec.PMID, err)
	}
	return nil
}

// RecordRun stores the run summary.
func (p *Postgres) RecordRun(ctx context.Context, run Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Exec(ctx,
		`INSERT INTO runs (id, started, finished, files, records, article_errors, duplicates, failed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Started, run.Finished,
		run.Files, run.Records, run.ArticleErrors, run.Duplicates, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close(context.Background())
}
