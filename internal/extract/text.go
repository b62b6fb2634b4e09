// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"
)

// inlineTags are formatting elements whose content belongs to the
// surrounding word ("H<sub>2</sub>O" reads "H2O").
var inlineTags = map[string]bool{
	"i": true, "b": true, "u": true, "sup": true, "sub": true,
	"em": true, "strong": true, "sc": true, "tt": true, "small": true,
	"italic": true, "bold": true, "underline": true,
}

// Text returns the plain text of el and all its descendants. Inline
// formatting tags are dropped without adding whitespace; any other nested
// element is kept apart from its neighbours by a space. Whitespace runs
// collapse to a single space and the result is NFC-normalized. A nil
// element yields "".
func Text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	writeText(&b, el)
	return clean(b.String())
}

func writeText(b *strings.Builder, el *etree.Element) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(t.Data)
		case *etree.Element:
			if inlineTags[t.Tag] {
				writeText(b, t)
				continue
			}
			b.WriteByte(' ')
			writeText(b, t)
			b.WriteByte(' ')
		}
	}
}

func clean(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// textAt returns Text of the first element matching path under el.
func textAt(el *etree.Element, path string) string {
	if el == nil {
		return ""
	}
	return Text(el.FindElement(path))
}

// textsAt returns the non-empty texts of every element matching path.
func textsAt(el *etree.Element, path string) []string {
	if el == nil {
		return nil
	}
	var out []string
	for _, e := range el.FindElements(path) {
		if s := Text(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}
