// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package walker streams PubmedArticle subtrees out of plain or
// gzip-compressed PubMed XML without materializing the whole document.
//
// The walker cuts the raw byte stream into <PubmedArticle> ... </PubmedArticle>
// shards and parses each shard with its own decoder, so a malformed article
// only poisons its own position. Only the current shard is held in memory;
// the previous shard and its element tree are released on every advance.
// A <PubmedArticle start tag met before the current shard's end tag closes
// that shard as truncated and opens the next one.
//
// Boundaries are found by byte matching, so an article whose CDATA section
// or comment contains a literal </PubmedArticle> is cut short and reported
// as a parse failure. PubMed exports do not use either construct.
package walker

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beevik/etree"

	"github.com/pdiddy/pubmed-engine/internal/errs"
)

const (
	articleTag = "PubmedArticle"

	// DefaultMaxArticleBytes bounds a single article shard.
	DefaultMaxArticleBytes = 64 << 20

	readBufSize    = 256 << 10
	maxPrologBytes = 4 << 20
	shrinkAbove    = 4 << 20
)

var (
	endPat    = []byte("</" + articleTag + ">")
	startPat  = []byte("<" + articleTag)
	gzipMagic = []byte{0x1f, 0x8b}
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
)

// Options tunes the walker.
type Options struct {
	// MaxArticleBytes caps the size of one article element. Zero means
	// DefaultMaxArticleBytes.
	MaxArticleBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxArticleBytes <= 0 {
		o.MaxArticleBytes = DefaultMaxArticleBytes
	}
	return o
}

// Article is one step of the walk: either a parsed subtree or a
// per-article error. Root is only valid until the next call to Next.
type Article struct {
	Index  int
	Offset int64
	Root   *etree.Element
	Err    error
}

// Walker is a forward-only, single-consumer cursor over the articles of one
// source. It is not restartable and not safe for concurrent use.
type Walker struct {
	br      *bufio.Reader
	closers []io.Closer
	gzipped bool
	opts    Options

	offset      int64
	startOffset int64
	index       int
	seenArticle bool

	prolog          bytes.Buffer
	prologTruncated bool

	buf  bytes.Buffer
	tail [len(articleTag) + 3]byte

	// carry holds the last bytes of the shard so far, scan is scratch for
	// carry plus the latest read. pending is the beginning of the next
	// shard when a start tag turned up before the current end tag.
	carry         []byte
	scan          []byte
	pending       []byte
	pendingOffset int64

	cur  Article
	err  error
	done bool

	closed bool
}

// New wraps r, transparently decompressing gzip input. The caller keeps
// ownership of r; Close releases only the decompression state.
func New(r io.Reader, opts Options) (*Walker, error) {
	w := &Walker{opts: opts.withDefaults()}

	br := bufio.NewReaderSize(r, readBufSize)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &errs.SourceError{Op: "read", Err: err}
	}
	if bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, &errs.SourceError{Op: "gzip", Err: err}
		}
		w.closers = append(w.closers, zr)
		w.gzipped = true
		br = bufio.NewReaderSize(zr, readBufSize)
	}
	w.br = br
	return w, nil
}

// Open opens the file at path. A ".gz" path must contain gzip data.
func Open(path string, opts Options) (*Walker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.SourceError{Op: "open", Err: err}
	}
	w, err := New(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closers = append(w.closers, f)

	if strings.HasSuffix(path, ".gz") && !w.gzipped {
		w.Close()
		return nil, &errs.SourceError{Op: "gzip", Err: fmt.Errorf("%s is not gzip-compressed", path)}
	}
	return w, nil
}

// Walk opens path and calls fn for every article in order. Returning
// errs.ErrStop from fn ends the walk early without error. The source is
// closed before Walk returns in every case.
func Walk(ctx context.Context, path string, opts Options, fn func(Article) error) error {
	w, err := Open(path, opts)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Each(ctx, fn)
}

// Each drives the walker to completion, calling fn per article. The
// context is checked before every advance.
func (w *Walker) Each(ctx context.Context, fn func(Article) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !w.Next() {
			return w.Err()
		}
		if err := fn(w.Article()); err != nil {
			if errors.Is(err, errs.ErrStop) {
				return nil
			}
			return err
		}
	}
}

// Next advances to the next article. It returns false at end of input or
// on a source error; Err distinguishes the two.
func (w *Walker) Next() bool {
	if w.done || w.closed || w.err != nil {
		return false
	}
	w.cur = Article{}
	w.release()

	if w.pending != nil {
		w.startOffset = w.pendingOffset
		w.cur = w.readArticle()
		return w.err == nil
	}

	found, err := w.seekStart()
	if err != nil {
		w.err = err
		return false
	}
	if !w.seenArticle {
		if err := w.checkProlog(); err != nil {
			w.err = err
			return false
		}
		w.seenArticle = true
		w.prolog = bytes.Buffer{}
	}
	if !found {
		w.done = true
		return false
	}

	w.cur = w.readArticle()
	if w.err != nil {
		return false
	}
	return true
}

// Article returns the current article.
func (w *Walker) Article() Article { return w.cur }

// Err returns the source error that stopped the walk, if any.
func (w *Walker) Err() error { return w.err }

// Close releases the decompressor and, for Open, the file. It is safe to
// call more than once and before the walk is exhausted.
func (w *Walker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.cur = Article{}
	w.buf = bytes.Buffer{}
	w.prolog = bytes.Buffer{}
	w.pending, w.carry, w.scan = nil, nil, nil

	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// release drops the previous shard, shrinking the buffer if one unusually
// large article grew it.
func (w *Walker) release() {
	if w.buf.Cap() > shrinkAbove {
		w.buf = bytes.Buffer{}
		return
	}
	w.buf.Reset()
}

// seekStart consumes input up to and including the '<' of the next
// <PubmedArticle start tag.
func (w *Walker) seekStart() (bool, error) {
	for {
		chunk, err := w.br.ReadSlice('<')
		w.offset += int64(len(chunk))
		if !w.seenArticle {
			w.keepProlog(chunk)
		}
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return false, nil
		default:
			return false, w.sourceErr("read", err)
		}

		next, err := w.br.Peek(len(articleTag) + 1)
		if err != nil && !errors.Is(err, io.EOF) {
			return false, w.sourceErr("read", err)
		}
		if !bytes.HasPrefix(next, []byte(articleTag)) {
			continue
		}
		// A start tag cut off by EOF still counts; readArticle reports it
		// as truncated.
		if len(next) == len(articleTag) || isDelim(next[len(articleTag)]) {
			w.startOffset = w.offset - 1
			if !w.seenArticle && !w.prologTruncated {
				w.prolog.Truncate(w.prolog.Len() - 1)
			}
			return true, nil
		}
	}
}

// readArticle collects the shard from the start tag to its end tag and
// parses it.
func (w *Walker) readArticle() Article {
	a := Article{Index: w.index, Offset: w.startOffset}
	w.index++

	w.tail = [len(w.tail)]byte{}
	w.carry = w.carry[:0]
	if w.pending != nil {
		w.buf.Write(w.pending)
		w.slide(w.pending)
		w.pending = nil
	} else {
		w.buf.WriteByte('<')
	}
	tooLarge := false

	for {
		chunk, err := w.br.ReadSlice('>')
		w.offset += int64(len(chunk))
		if w.nextStart(chunk) {
			if err != nil && !errors.Is(err, bufio.ErrBufferFull) && !errors.Is(err, io.EOF) {
				w.err = w.sourceErr("read", err)
				return a
			}
			a.Err = &errs.ArticleError{Index: a.Index, Offset: a.Offset, Err: errs.ErrTruncated}
			return a
		}
		w.slide(chunk)

		if !tooLarge {
			if w.buf.Len()+len(chunk) > w.opts.MaxArticleBytes {
				tooLarge = true
				w.release()
			} else {
				w.buf.Write(chunk)
			}
		}

		switch {
		case err == nil:
			if !bytes.HasSuffix(w.tail[:], endPat) {
				continue
			}
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			w.done = true
			a.Err = &errs.ArticleError{Index: a.Index, Offset: a.Offset, Err: errs.ErrTruncated}
			return a
		default:
			w.err = w.sourceErr("read", err)
			return a
		}
		break
	}

	if tooLarge {
		a.Err = &errs.ArticleError{Index: a.Index, Offset: a.Offset, Err: errs.ErrArticleTooLarge}
		return a
	}

	doc := etree.NewDocument()
	doc.ReadSettings.Entity = xml.HTMLEntity
	if err := doc.ReadFromBytes(w.buf.Bytes()); err != nil {
		a.Err = &errs.ArticleError{Index: a.Index, Offset: a.Offset, Err: fmt.Errorf("parsing article: %w", err)}
		return a
	}
	root := doc.Root()
	if root == nil {
		a.Err = &errs.ArticleError{Index: a.Index, Offset: a.Offset, Err: fmt.Errorf("parsing article: empty document")}
		return a
	}
	a.Root = root
	return a
}

// nextStart looks for a <PubmedArticle start tag in chunk, including one
// that began in the previous read. On a match the tag and everything after
// it is kept in pending for the next shard.
func (w *Walker) nextStart(chunk []byte) bool {
	w.scan = append(append(w.scan[:0], w.carry...), chunk...)
	base := w.offset - int64(len(w.scan))

	for i := 0; ; {
		j := bytes.Index(w.scan[i:], startPat)
		if j < 0 {
			break
		}
		i += j
		end := i + len(startPat)
		if end >= len(w.scan) {
			break
		}
		if isDelim(w.scan[end]) {
			w.pending = bytes.Clone(w.scan[i:])
			w.pendingOffset = base + int64(i)
			return true
		}
		i = end
	}

	keep := min(len(startPat), len(w.scan))
	w.carry = append(w.carry[:0], w.scan[len(w.scan)-keep:]...)
	return false
}

// slide keeps the last len(tail) bytes seen so the end tag is found even
// when it straddles two reads.
func (w *Walker) slide(chunk []byte) {
	n := len(w.tail)
	if len(chunk) >= n {
		copy(w.tail[:], chunk[len(chunk)-n:])
		return
	}
	copy(w.tail[:], w.tail[len(chunk):])
	copy(w.tail[n-len(chunk):], chunk)
}

func (w *Walker) keepProlog(chunk []byte) {
	if w.prologTruncated {
		return
	}
	room := maxPrologBytes - w.prolog.Len()
	if len(chunk) > room {
		w.prolog.Write(chunk[:room])
		w.prologTruncated = true
		return
	}
	w.prolog.Write(chunk)
}

// checkProlog validates the bytes that precede the first article. Anything
// that is not well-formed markup there means the input is not a PubMed
// document at all.
func (w *Walker) checkProlog() error {
	data := bytes.TrimPrefix(w.prolog.Bytes(), utf8BOM)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	depth := 0
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if w.prologTruncated && isTruncErr(err) {
				return nil
			}
			return &errs.SourceError{Op: "prolog", Offset: dec.InputOffset(), Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth <= 0 && len(bytes.TrimSpace(t)) > 0 {
				return &errs.SourceError{Op: "prolog", Offset: dec.InputOffset(), Err: errors.New("text outside of any element")}
			}
		}
	}
}

func (w *Walker) sourceErr(op string, err error) error {
	return &errs.SourceError{Op: op, Offset: w.offset, Err: err}
}

// isDelim reports whether b may follow a tag name.
func isDelim(b byte) bool {
	switch b {
	case '>', '/', ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

// isTruncErr matches the decoder errors raised when input ends mid-token.
// encoding/xml has no sentinel for this.
func isTruncErr(err error) bool {
	return strings.Contains(err.Error(), "unexpected EOF")
}
