// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

const (
	citationPath = "MedlineCitation"
	articlePath  = "MedlineCitation/Article"

	unassignedLabel = "UNASSIGNED"
)

func extractTitle(article *etree.Element, rec *types.ArticleRecord) error {
	a := article.FindElement(articlePath)
	title := textAt(a, "ArticleTitle")
	if title == "" {
		title = textAt(a, "VernacularTitle")
	}
	if title != "" {
		rec.MetaInfo.Title = title
	}
	return nil
}

// extractAbstract joins structured sections in document order, one per
// line, as "LABEL: text". Sections labelled UNASSIGNED keep their text but
// lose the label.
func extractAbstract(article *etree.Element, rec *types.ArticleRecord) error {
	a := article.FindElement(articlePath)
	if a == nil {
		return nil
	}
	texts := a.FindElements("Abstract/AbstractText")
	if len(texts) == 0 {
		rec.Abstract = textAt(a, "Abstract")
		return nil
	}

	var (
		parts      []string
		sections   []types.AbstractSection
		structured = len(texts) > 1
	)
	for _, el := range texts {
		label := strings.TrimSpace(el.SelectAttrValue("Label", ""))
		if label == unassignedLabel {
			label = ""
		}
		text := Text(el)
		if text == "" && label == "" {
			continue
		}
		if label != "" {
			structured = true
			parts = append(parts, label+": "+text)
		} else {
			parts = append(parts, text)
		}
		sections = append(sections, types.AbstractSection{Label: label, Text: text})
	}

	rec.Abstract = strings.Join(parts, "\n")
	if structured {
		rec.AbstractSections = sections
	}
	return nil
}

func extractJournal(article *etree.Element, rec *types.ArticleRecord) error {
	j := article.FindElement(articlePath + "/Journal")
	if j == nil {
		return nil
	}
	m := &rec.MetaInfo
	m.Journal = textAt(j, "Title")
	m.JournalAbbrev = textAt(j, "ISOAbbreviation")
	m.ISSN = textAt(j, "ISSN")
	m.PublicationDate = pubDate(j.FindElement("JournalIssue/PubDate"))
	return nil
}

// pubDate renders a PubDate as "Year Month Day", skipping absent parts, or
// returns the free-text MedlineDate.
func pubDate(el *etree.Element) string {
	if el == nil {
		return ""
	}
	month := textAt(el, "Month")
	if month == "" {
		month = textAt(el, "Season")
	}
	var parts []string
	for _, p := range []string{textAt(el, "Year"), month, textAt(el, "Day")} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return textAt(el, "MedlineDate")
}

func extractArticleIDs(article *etree.Element, rec *types.ArticleRecord) error {
	m := &rec.MetaInfo
	var ids []types.ArticleID
	for _, el := range article.FindElements("PubmedData/ArticleIdList/ArticleId") {
		id := types.ArticleID{
			IDType: strings.TrimSpace(el.SelectAttrValue("IdType", "")),
			Value:  Text(el),
		}
		if id.Value == "" {
			continue
		}
		ids = append(ids, id)
		switch id.IDType {
		case "doi":
			if m.DOI == "" {
				m.DOI = id.Value
			}
		case "pmc":
			if m.PMC == "" {
				m.PMC = id.Value
			}
		}
	}
	m.ArticleIDs = ids

	if m.DOI == "" {
		m.DOI = textAt(article, articlePath+"/ELocationID[@EIdType='doi']")
	}
	return nil
}

func extractKeywords(article *etree.Element, rec *types.ArticleRecord) error {
	rec.MetaInfo.Keywords = textsAt(article, citationPath+"/KeywordList/Keyword")
	return nil
}

func extractLanguages(article *etree.Element, rec *types.ArticleRecord) error {
	rec.MetaInfo.Languages = textsAt(article, articlePath+"/Language")
	return nil
}

func extractPagination(article *etree.Element, rec *types.ArticleRecord) error {
	a := article.FindElement(articlePath)
	if a == nil {
		return nil
	}
	m := &rec.MetaInfo
	m.Volume = textAt(a, "Journal/JournalIssue/Volume")
	m.Issue = textAt(a, "Journal/JournalIssue/Issue")

	m.Pages = textAt(a, "Pagination/MedlinePgn")
	if m.Pages == "" {
		start, end := textAt(a, "Pagination/StartPage"), textAt(a, "Pagination/EndPage")
		switch {
		case start != "" && end != "":
			m.Pages = start + "-" + end
		default:
			m.Pages = start
		}
	}
	return nil
}

func extractPublicationTypes(article *etree.Element, rec *types.ArticleRecord) error {
	var pts []types.PublicationType
	for _, el := range article.FindElements(articlePath + "/PublicationTypeList/PublicationType") {
		name := Text(el)
		if name == "" {
			continue
		}
		pts = append(pts, types.PublicationType{UI: el.SelectAttrValue("UI", ""), Name: name})
	}
	rec.MetaInfo.PublicationTypes = pts
	return nil
}

func extractDatesHistory(article *etree.Element, rec *types.ArticleRecord) error {
	var dates []types.HistoryDate
	for _, el := range article.FindElements("PubmedData/History/PubMedPubDate") {
		dates = append(dates, types.HistoryDate{
			Status: el.SelectAttrValue("PubStatus", ""),
			Year:   textAt(el, "Year"),
			Month:  textAt(el, "Month"),
			Day:    textAt(el, "Day"),
		})
	}
	rec.MetaInfo.DatesHistory = dates
	return nil
}

func extractAuthors(article *etree.Element, rec *types.ArticleRecord) error {
	var authors []types.Author
	for _, el := range article.FindElements(articlePath + "/AuthorList/Author") {
		if el.SelectAttrValue("ValidYN", "Y") == "N" {
			continue
		}
		a := types.Author{
			LastName:    textAt(el, "LastName"),
			ForeName:    textAt(el, "ForeName"),
			Initials:    textAt(el, "Initials"),
			Affiliation: textAt(el, "AffiliationInfo/Affiliation"),
		}
		a.Name = strings.TrimSpace(a.ForeName + " " + a.LastName)
		if a.Name == "" {
			a.Name = textAt(el, "CollectiveName")
		}
		if a.Name == "" {
			continue
		}
		authors = append(authors, a)
	}
	rec.Authors = authors
	return nil
}

// extractMeshTerms renders each heading as "UI:Descriptor[*]" followed by
// " / UI:Qualifier[*]" per qualifier, "*" marking a major topic. A heading
// without a descriptor makes the whole list unreliable, so nothing is kept.
func extractMeshTerms(article *etree.Element, rec *types.ArticleRecord) error {
	var terms []string
	seen := make(map[string]bool)
	for i, h := range article.FindElements(citationPath + "/MeshHeadingList/MeshHeading") {
		d := h.SelectElement("DescriptorName")
		if d == nil || Text(d) == "" {
			return fmt.Errorf("mesh heading %d has no descriptor: %w", i, errs.ErrInvalidInput)
		}
		var b strings.Builder
		writeMesh(&b, d)
		for _, q := range h.SelectElements("QualifierName") {
			b.WriteString(" / ")
			writeMesh(&b, q)
		}
		term := b.String()
		if seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	rec.MeshTerms = terms
	return nil
}

func writeMesh(b *strings.Builder, el *etree.Element) {
	b.WriteString(el.SelectAttrValue("UI", ""))
	b.WriteByte(':')
	b.WriteString(Text(el))
	if el.SelectAttrValue("MajorTopicYN", "N") == "Y" {
		b.WriteByte('*')
	}
}

func extractReferences(article *etree.Element, rec *types.ArticleRecord) error {
	var refs []types.Reference
	for _, el := range article.FindElements("PubmedData//ReferenceList/Reference") {
		r := types.Reference{
			Citation: textAt(el, "Citation"),
			PMID:     textAt(el, "ArticleIdList/ArticleId[@IdType='pubmed']"),
			DOI:      textAt(el, "ArticleIdList/ArticleId[@IdType='doi']"),
		}
		if r == (types.Reference{}) {
			continue
		}
		refs = append(refs, r)
	}
	rec.References = refs
	return nil
}
