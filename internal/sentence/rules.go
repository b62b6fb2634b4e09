// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sentence segments abstract text into sentence spans.
//
// The default Rules detector is a heuristic built for biomedical prose. It
// avoids the common false boundaries ("Fig. 2", "et al.", "p < 0.05", author
// initials) but is not a linguistic parser and will mis-split some inputs.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is the half-open byte range [Start, End) of one sentence, including
// the whitespace that follows it.
type Span struct {
	Start int
	End   int
}

// Detector segments text into ordered spans that cover it without gaps or
// overlaps.
type Detector interface {
	Segment(text string) []Span
}

// defaultAbbrevs lists lowercase tokens, trailing period included, after
// which a period never ends a sentence.
var defaultAbbrevs = []string{
	"al.", "approx.", "ca.", "cf.", "co.", "dept.", "dr.", "e.g.", "eq.",
	"eqs.", "etc.", "fig.", "figs.", "i.e.", "inc.", "jr.", "ltd.", "mr.",
	"mrs.", "ms.", "no.", "nos.", "pp.", "prof.", "ref.", "refs.", "resp.",
	"sp.", "spp.", "sr.", "st.", "suppl.", "tab.", "viz.", "vol.", "vs.",
}

// Rules is the rule-based detector. The zero value is not usable; call
// NewRules.
type Rules struct {
	abbrevs map[string]struct{}
}

// NewRules returns a detector with the built-in abbreviation list plus any
// extra abbreviations (case-insensitive, with or without the final period).
func NewRules(extra ...string) *Rules {
	r := &Rules{abbrevs: make(map[string]struct{}, len(defaultAbbrevs)+len(extra))}
	for _, a := range defaultAbbrevs {
		r.abbrevs[a] = struct{}{}
	}
	for _, a := range extra {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if !strings.HasSuffix(a, ".") {
			a += "."
		}
		r.abbrevs[a] = struct{}{}
	}
	return r
}

// Segment splits text at sentence boundaries. A boundary follows '.', '!'
// or '?' (plus any closing quotes or brackets) when whitespace and then an
// uppercase letter, digit, or opening bracket come next; every newline is
// also a boundary. Trailing whitespace belongs to the sentence before it.
func (r *Rules) Segment(text string) []Span {
	if text == "" {
		return nil
	}

	var spans []Span
	start := 0
	cut := func(at int) {
		if hasContent(text[start:at]) {
			spans = append(spans, Span{Start: start, End: at})
			start = at
		}
	}

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\n':
			k := skipSpace(text, i)
			if k < len(text) {
				cut(k)
			}
			i = k

		case isTerminator(c):
			j := skipClosers(text, i+1)
			k := skipSpace(text, j)
			if k == j || k >= len(text) {
				i = j
				continue
			}
			if strings.ContainsRune(text[j:k], '\n') || (opensSentence(text[k:]) && !(c == '.' && r.suppressed(text, i))) {
				cut(k)
			}
			i = k

		default:
			i++
		}
	}

	if start < len(text) {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

// Sentences returns the sentence texts of the spans, whitespace included.
func Sentences(d Detector, text string) []string {
	spans := d.Segment(text)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = text[sp.Start:sp.End]
	}
	return out
}

// suppressed reports whether the period at dot closes an abbreviation,
// an initial, or a dotted acronym rather than a sentence.
func (r *Rules) suppressed(text string, dot int) bool {
	ws := dot
	for ws > 0 && !isASCIISpace(text[ws-1]) {
		ws--
	}
	word := strings.TrimLeft(text[ws:dot+1], "([{\"'")
	if word == "." {
		return false
	}
	if _, ok := r.abbrevs[strings.ToLower(word)]; ok {
		return true
	}

	// "J." or "U.S." style: single letters each followed by a period.
	body := word
	for body != "" {
		ch, size := utf8.DecodeRuneInString(body)
		if !unicode.IsLetter(ch) || len(body) <= size || body[size] != '.' {
			return false
		}
		if len(body) == size+1 && !unicode.IsUpper(ch) && !strings.Contains(word[:len(word)-1], ".") {
			return false
		}
		body = body[size+1:]
	}
	return true
}

func isTerminator(c byte) bool { return c == '.' || c == '!' || c == '?' }

// skipClosers advances past repeated terminators and closing quotes or
// brackets.
func skipClosers(text string, i int) int {
	for i < len(text) {
		ch, size := utf8.DecodeRuneInString(text[i:])
		switch ch {
		case '.', '!', '?', ')', ']', '}', '"', '\'', '”', '’', '»':
			i += size
		default:
			return i
		}
	}
	return i
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		ch, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(ch) {
			return i
		}
		i += size
	}
	return i
}

// opensSentence reports whether s starts like a new sentence.
func opensSentence(s string) bool {
	ch, _ := utf8.DecodeRuneInString(s)
	switch ch {
	case '(', '[', '"', '\'', '“', '‘', '«':
		return true
	}
	return unicode.IsUpper(ch) || unicode.IsDigit(ch)
}

func hasContent(s string) bool { return strings.TrimSpace(s) != "" }

func isASCIISpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
