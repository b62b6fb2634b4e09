// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package walker

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-engine/internal/errs"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2024//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_240101.dtd">
<PubmedArticleSet>
`

const footer = "\n</PubmedArticleSet>\n"

func article(pmid, title string) string {
	return fmt.Sprintf(`<PubmedArticle>
  <MedlineCitation Status="MEDLINE" Owner="NLM">
    <PMID Version="1">%s</PMID>
    <Article PubModel="Print"><ArticleTitle>%s</ArticleTitle></Article>
  </MedlineCitation>
</PubmedArticle>
`, pmid, title)
}

func doc(articles ...string) string {
	return header + strings.Join(articles, "") + footer
}

func gzipped(t testing.TB, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := io.WriteString(zw, s)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func collect(t *testing.T, w *Walker) []Article {
	t.Helper()
	var out []Article
	for w.Next() {
		out = append(out, w.Article())
	}
	return out
}

func pmidOf(a Article) string {
	if a.Root == nil {
		return ""
	}
	return a.Root.FindElement("MedlineCitation/PMID").Text()
}

func TestWalker_PlainAndGzip(t *testing.T) {
	src := doc(article("101", "One"), article("102", "Two"), article("103", "Three"))

	inputs := map[string][]byte{
		"plain": []byte(src),
		"gzip":  gzipped(t, src),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			w, err := New(bytes.NewReader(data), Options{})
			require.NoError(t, err)
			defer w.Close()

			got := collect(t, w)
			require.NoError(t, w.Err())
			require.Len(t, got, 3)

			for i, a := range got {
				require.NoError(t, a.Err)
				assert.Equal(t, i, a.Index)
				assert.Equal(t, "PubmedArticle", a.Root.Tag)
				assert.Equal(t, strconv.Itoa(101+i), pmidOf(a))
			}
			assert.Equal(t, int64(strings.Index(src, "<PubmedArticle>")), got[0].Offset)
			assert.Equal(t, int64(strings.LastIndex(src, "<PubmedArticle>")), got[2].Offset)
		})
	}
}

func TestWalker_ZeroArticles(t *testing.T) {
	for _, src := range []string{"", header + footer, "<PubmedArticleSet/>"} {
		w, err := New(strings.NewReader(src), Options{})
		require.NoError(t, err)

		assert.False(t, w.Next())
		assert.NoError(t, w.Err())
		assert.NoError(t, w.Close())
	}
}

func TestWalker_MalformedProlog(t *testing.T) {
	tests := map[string]string{
		"text outside elements": "this is not xml at all " + article("1", "x"),
		"broken markup":         "<PubmedArticleSet><Bad attr=>" + article("1", "x"),
		"garbage without tags":  "plain text, no markup",
		"unterminated tag":      "<PubmedArticleSet><Broken",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			w, err := New(strings.NewReader(src), Options{})
			require.NoError(t, err)

			assert.False(t, w.Next())
			require.Error(t, w.Err())
			assert.True(t, errs.IsSource(w.Err()))
			assert.False(t, w.Next(), "a source error is final")
		})
	}
}

func TestWalker_BadArticleResumes(t *testing.T) {
	bad := `<PubmedArticle><MedlineCitation><PMID>2</PMID><Article><ArticleTitle>A & B</ArticleTitle></Article></MedlineCitation></PubmedArticle>`
	src := doc(article("1", "ok"), bad, article("3", "ok"))

	w, err := New(strings.NewReader(src), Options{})
	require.NoError(t, err)
	defer w.Close()

	got := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, got, 3)

	assert.Equal(t, "1", pmidOf(got[0]))
	assert.Nil(t, got[1].Root)
	require.Error(t, got[1].Err)
	assert.True(t, errs.IsArticle(got[1].Err))
	var ae *errs.ArticleError
	require.True(t, errors.As(got[1].Err, &ae))
	assert.Equal(t, 1, ae.Index)
	assert.Equal(t, int64(strings.Index(src, bad)), ae.Offset)
	assert.Equal(t, "3", pmidOf(got[2]))
}

func TestWalker_MissingEndTagResumes(t *testing.T) {
	unclosed := `<PubmedArticle><MedlineCitation><PMID>1</PMID><Article><ArticleTitle>` +
		strings.Repeat("open ", 300) + `</ArticleTitle></Article></MedlineCitation>`

	tests := []struct {
		name string
		opts Options
	}{
		{"default limit", Options{}},
		{"over the limit", Options{MaxArticleBytes: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			second := article("2", "ok")
			src := doc(unclosed, second, article("3", "ok"))

			w, err := New(strings.NewReader(src), tt.opts)
			require.NoError(t, err)
			defer w.Close()

			got := collect(t, w)
			require.NoError(t, w.Err())
			require.Len(t, got, 3)

			assert.ErrorIs(t, got[0].Err, errs.ErrTruncated)
			assert.True(t, errs.IsArticle(got[0].Err))
			assert.Equal(t, int64(len(header)), got[0].Offset)

			assert.Equal(t, "2", pmidOf(got[1]))
			assert.Equal(t, 1, got[1].Index)
			assert.Equal(t, int64(strings.Index(src, second)), got[1].Offset)
			assert.Equal(t, "3", pmidOf(got[2]))
			assert.Equal(t, 2, got[2].Index)
		})
	}
}

func TestWalker_StartTagAcrossReads(t *testing.T) {
	// The run of x fills the read buffer so that it ends inside the next
	// start tag.
	unclosed := `<PubmedArticle><MedlineCitation><PMID>1</PMID><AbstractText>` +
		strings.Repeat("x", readBufSize-5)
	second := article("2", "ok")
	src := doc(unclosed, second)

	w, err := New(strings.NewReader(src), Options{})
	require.NoError(t, err)
	defer w.Close()

	got := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[0].Err, errs.ErrTruncated)
	assert.Equal(t, "2", pmidOf(got[1]))
	assert.Equal(t, int64(strings.Index(src, second)), got[1].Offset)
}

func TestWalker_EndTagInCDATA(t *testing.T) {
	cdata := `<PubmedArticle><MedlineCitation><PMID>1</PMID><X><![CDATA[ a </PubmedArticle> b ]]></X></MedlineCitation></PubmedArticle>`
	src := doc(cdata, article("2", "ok"))

	w, err := New(strings.NewReader(src), Options{})
	require.NoError(t, err)
	defer w.Close()

	got := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, got, 2)
	assert.True(t, errs.IsArticle(got[0].Err), "the shard ends at the first end tag")
	assert.Equal(t, "2", pmidOf(got[1]))
}

func TestWalker_TruncatedArticle(t *testing.T) {
	src := header + article("1", "ok") + `<PubmedArticle><MedlineCitation><PMID>2</PMID><Art`

	w, err := New(strings.NewReader(src), Options{})
	require.NoError(t, err)

	got := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "1", pmidOf(got[0]))
	assert.ErrorIs(t, got[1].Err, errs.ErrTruncated)
	assert.True(t, errs.IsArticle(got[1].Err))
}

func TestWalker_ArticleTooLarge(t *testing.T) {
	src := doc(article("1", strings.Repeat("long ", 200)), article("2", "short"))

	w, err := New(strings.NewReader(src), Options{MaxArticleBytes: 400})
	require.NoError(t, err)

	got := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[0].Err, errs.ErrArticleTooLarge)
	assert.Equal(t, "2", pmidOf(got[1]))
}

func TestWalker_SkipsOtherTopLevelElements(t *testing.T) {
	src := header +
		`<PubmedBookArticle><BookDocument><PMID>7</PMID></BookDocument></PubmedBookArticle>` +
		article("8", "kept") +
		`<DeleteCitation><PMID Version="1">9</PMID></DeleteCitation>` +
		footer

	w, err := New(strings.NewReader(src), Options{})
	require.NoError(t, err)

	got := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, got, 1)
	assert.Equal(t, "8", pmidOf(got[0]))
}

func TestWalker_AttributesOnStartTag(t *testing.T) {
	src := header + "<PubmedArticle\n  xmlns:mml=\"http://www.w3.org/1998/Math/MathML\"><MedlineCitation><PMID>5</PMID></MedlineCitation></PubmedArticle>" + footer

	w, err := New(strings.NewReader(src), Options{})
	require.NoError(t, err)

	got := collect(t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "5", pmidOf(got[0]))
}

func TestWalker_CorruptGzip(t *testing.T) {
	data := gzipped(t, doc(article("1", "a"), article("2", "b")))

	_, err := New(bytes.NewReader([]byte{0x1f, 0x8b, 0x00, 0x00}), Options{})
	assert.True(t, errs.IsSource(err))

	w, err := New(bytes.NewReader(data[:len(data)/2]), Options{})
	require.NoError(t, err)
	for w.Next() {
	}
	assert.True(t, errs.IsSource(w.Err()))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	src := doc(article("11", "a"), article("12", "b"))

	gz := filepath.Join(dir, "batch.xml.gz")
	require.NoError(t, os.WriteFile(gz, gzipped(t, src), 0o644))
	fake := filepath.Join(dir, "fake.xml.gz")
	require.NoError(t, os.WriteFile(fake, []byte(src), 0o644))

	w, err := Open(gz, Options{})
	require.NoError(t, err)
	assert.Len(t, collect(t, w), 2)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close(), "close is idempotent")

	_, err = Open(fake, Options{})
	assert.True(t, errs.IsSource(err))

	_, err = Open(filepath.Join(dir, "missing.xml"), Options{})
	assert.True(t, errs.IsSource(err))
}

func TestWalker_EarlyClose(t *testing.T) {
	w, err := New(strings.NewReader(doc(article("1", "a"), article("2", "b"))), Options{})
	require.NoError(t, err)

	require.True(t, w.Next())
	require.NoError(t, w.Close())
	assert.False(t, w.Next())
	assert.Nil(t, w.Article().Root)
}

func TestWalk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.xml")
	require.NoError(t, os.WriteFile(path, []byte(doc(article("1", "a"), article("2", "b"), article("3", "c"))), 0o644))

	t.Run("visits all", func(t *testing.T) {
		var pmids []string
		err := Walk(context.Background(), path, Options{}, func(a Article) error {
			pmids = append(pmids, pmidOf(a))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, pmids)
	})

	t.Run("stop early", func(t *testing.T) {
		n := 0
		err := Walk(context.Background(), path, Options{}, func(Article) error {
			n++
			return errs.ErrStop
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("callback error", func(t *testing.T) {
		boom := errors.New("boom")
		err := Walk(context.Background(), path, Options{}, func(Article) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Walk(ctx, path, Options{}, func(Article) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWalker_EachStopsBeforeNextRead(t *testing.T) {
	w, err := New(strings.NewReader(doc(article("1", "a"), article("2", "b"), article("3", "c"))), Options{})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	err = w.Each(ctx, func(a Article) error {
		seen = append(seen, pmidOf(a))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1"}, seen)

	require.True(t, w.Next(), "the second article is still unread")
	assert.Equal(t, 1, w.Article().Index)
	assert.Equal(t, "2", pmidOf(w.Article()))
}

func TestWalker_LargeGzipBoundedMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("large fixture")
	}

	const n = 40000
	title := strings.Repeat("synthetic title words ", 25)

	var raw bytes.Buffer
	zw := gzip.NewWriter(&raw)
	total := 0
	write := func(s string) {
		k, err := io.WriteString(zw, s)
		require.NoError(t, err)
		total += k
	}
	write(header)
	for i := 0; i < n; i++ {
		write(article(strconv.Itoa(i+1), title))
	}
	write(footer)
	require.NoError(t, zw.Close())

	w, err := New(bytes.NewReader(raw.Bytes()), Options{})
	require.NoError(t, err)
	defer w.Close()

	var ms runtime.MemStats
	var peakHeap uint64
	count, maxBuf := 0, 0
	for w.Next() {
		a := w.Article()
		require.NoError(t, a.Err)
		count++
		if c := w.buf.Cap(); c > maxBuf {
			maxBuf = c
		}
		if count%10000 == 0 {
			runtime.GC()
			runtime.ReadMemStats(&ms)
			if ms.HeapAlloc > peakHeap {
				peakHeap = ms.HeapAlloc
			}
		}
	}
	require.NoError(t, w.Err())

	assert.Equal(t, n, count)
	assert.Less(t, maxBuf, 64<<10, "shard buffer holds one article")
	assert.Less(t, peakHeap, uint64(total/3), "heap stays well below the decompressed size (%d bytes)", total)
}
