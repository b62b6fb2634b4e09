// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// SQLite stores records in a local database with full-text search over
// abstract chunks.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens or creates the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// DB exposes the handle for queries.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			pmid TEXT PRIMARY KEY,
			title TEXT,
			journal TEXT,
			publication_date TEXT,
			doi TEXT,
			abstract TEXT,
			citation_count INTEGER,
			record TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			pmid TEXT NOT NULL REFERENCES articles(pmid) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			UNIQUE(pmid, chunk_index)
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
			started TEXT NOT NULL,
			finished TEXT NOT NULL,
			files INTEGER,
			records INTEGER,
			article_errors INTEGER,
			duplicates INTEGER,
			failed INTEGER
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 index over chunk text, kept in sync by triggers.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE chunks_fts USING fts5(text, content=chunks, content_rowid=rowid)`,
			`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// Write upserts the article and replaces its chunks and MeSH terms.
func (s *SQLite) Write(ctx context.Context, rec types.ChunkedRecord) error {
	record, err := json.Marshal(rec.ArticleRecord)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", rec.PMID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m := rec.MetaInfo
	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (pmid, title, journal, publication_date, doi, abstract, citation_count, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pmid) DO UPDATE SET
			title=excluded.title, journal=excluded.journal,
			publication_date=excluded.publication_date, doi=excluded.doi,
			abstract=excluded.abstract, citation_count=excluded.citation_count,
			record=excluded.record`,
		rec.PMID, m.Title, m.Journal, m.PublicationDate, m.DOI, rec.Abstract,
		m.CitationCount, string(record),
	)
	if err != nil {
		return fmt.Errorf("upserting article %s: %w", rec.PMID, err)
	}

	for _, table := range []string{"chunks", "mesh_terms"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE pmid = ?`, rec.PMID); err != nil {
			return fmt.Errorf("clearing %s for %s: %w", table, rec.PMID, err)
		}
	}

	if len(rec.Chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chunks (pmid, chunk_index, text, token_count, start_offset, end_offset)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range rec.Chunks {
			if _, err := stmt.ExecContext(ctx, c.PMID, c.ChunkIndex, c.Text, c.TokenCount, c.Start, c.End); err != nil {
				return fmt.Errorf("inserting chunk %s/%d: %w", c.PMID, c.ChunkIndex, err)
			}
		}
	}

	for i, term := range rec.MeshTerms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mesh_terms (pmid, position, term) VALUES (?, ?, ?)`,
			rec.PMID, i, term,
		); err != nil {
			return fmt.Errorf("inserting mesh term for %s: %w", rec.PMID, err)
		}
	}

	return tx.Commit()
}

// RecordRun stores the run summary.
func (s *SQLite) RecordRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started, finished, files, records, article_errors, duplicates, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Started.UTC().Format(time.RFC3339Nano), run.Finished.UTC().Format(time.RFC3339Nano),
		run.Files, run.Records, run.ArticleErrors, run.Duplicates, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}
