// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	execs  []string
	tx     *fakeTx
	closed bool
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	c.tx = &fakeTx{copied: map[string]int{}}
	return c.tx, nil
}

func (c *fakeConn) Close(context.Context) error { c.closed = true; return nil }

// fakeTx instruments the pgx.Tx methods the sink calls. The embedded nil
// interface panics on anything else.
type fakeTx struct {
	pgx.Tx
	execs      []string
	copied     map[string]int
	copyErr    error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if t.copyErr != nil {
		return 0, t.copyErr
	}
	var n int64
	for src.Next() {
		n++
	}
	t.copied[table.Sanitize()] += int(n)
	return n, nil
}

func (t *fakeTx) Commit(context.Context) error { t.committed = true; return nil }

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func TestPostgres_Write(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}
	p, err := newPostgres(ctx, conn)
	require.NoError(t, err)
	assert.Len(t, conn.execs, len(pgSchema))

	require.NoError(t, p.Write(ctx, sampleRecord("36464825")))
	tx := conn.tx
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	require.Len(t, tx.execs, 3)
	assert.True(t, strings.HasPrefix(tx.execs[0], "INSERT INTO articles"))
	assert.Contains(t, tx.execs[1], "DELETE FROM chunks")
	assert.Contains(t, tx.execs[2], "DELETE FROM mesh_terms")
	assert.Equal(t, map[string]int{`"chunks"`: 2, `"mesh_terms"`: 2}, tx.copied)

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestPostgres_WriteRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}
	p, err := newPostgres(ctx, conn)
	require.NoError(t, err)

	boom := errors.New("copy failed")
	p.conn = &failingCopyConn{fakeConn: conn, err: boom}

	err = p.Write(ctx, sampleRecord("1"))
	assert.ErrorIs(t, err, boom)
	assert.True(t, conn.tx.rolledBack)
	assert.False(t, conn.tx.committed)
}

type failingCopyConn struct {
	*fakeConn
	err error
}

func (c *failingCopyConn) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, _ := c.fakeConn.Begin(ctx)
	c.tx.copyErr = c.err
	return tx, nil
}

// TestPostgres_Live runs against a real server when PUBMED_ENGINE_TEST_DSN
// is set.
func TestPostgres_Live(t *testing.T) {
	dsn := os.Getenv("PUBMED_ENGINE_TEST_DSN")
	if dsn == "" {
		t.Skip("PUBMED_ENGINE_TEST_DSN not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer p.Close()

	rec := sampleRecord("99000001")
	require.NoError(t, p.Write(ctx, rec))
	rec.Chunks = rec.Chunks[:1]
	require.NoError(t, p.Write(ctx, rec))

	conn := p.conn.(*pgx.Conn)
	var chunks int
	require.NoError(t, conn.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE pmid = $1`, rec.PMID).Scan(&chunks))
	assert.Equal(t, 1, chunks)

	var journal string
	require.NoError(t, conn.QueryRow(ctx, `SELECT record->'meta_info'->>'journal' FROM articles WHERE pmid = $1`, rec.PMID).Scan(&journal))
	assert.Equal(t, "Nature", journal)

	now := time.Now()
	require.NoError(t, p.RecordRun(ctx, Run{ID: "live-" + now.Format("150405.000000"), Started: now, Finished: now}))

	_, err = conn.Exec(ctx, `DELETE FROM articles WHERE pmid = $1`, rec.PMID)
	require.NoError(t, err)
}
