// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-engine/internal/errs"
	"github.com/pdiddy/pubmed-engine/pkg/types"
)

func loadArticle(t *testing.T, path string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	el := doc.FindElement("//PubmedArticle")
	require.NotNil(t, el)
	return el
}

func parseElement(t *testing.T, s string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(s))
	require.NotNil(t, doc.Root())
	return doc.Root()
}

func extractAll(t *testing.T, el *etree.Element) *types.ArticleRecord {
	t.Helper()
	rec := &types.ArticleRecord{}
	for _, f := range Default() {
		require.NoError(t, f.Extract(el, rec), f.Name())
	}
	return rec
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{"plain", `<T>Hello world</T>`, "Hello world"},
		{"inline italic", `<T>Effects of <i>H. pylori</i> on mice</T>`, "Effects of H. pylori on mice"},
		{"inline joins word", `<T>H<sub>2</sub>O and CO<sub>2</sub></T>`, "H2O and CO2"},
		{"block element separated", `<T>see<xref>Table 1</xref>below</T>`, "see Table 1 below"},
		{"whitespace collapse", "<T>  many\n\t spaces   here </T>", "many spaces here"},
		{"nested inline", `<T>a <b>bold <i>italic</i></b> end</T>`, "a bold italic end"},
		{"entities", `<T>p &lt; 0.05 &amp; more</T>`, "p < 0.05 & more"},
		{"nfc", "<T>cafe\u0301</T>", "caf\u00e9"},
		{"empty", `<T/>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(parseElement(t, tt.xml)))
		})
	}
	assert.Equal(t, "", Text(nil))
}

func TestPMID(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		want    string
		wantErr error
	}{
		{
			name: "medline citation",
			xml:  `<PubmedArticle><MedlineCitation><PMID Version="1"> 123 </PMID></MedlineCitation></PubmedArticle>`,
			want: "123",
		},
		{
			name: "leading zeros kept",
			xml:  `<PubmedArticle><MedlineCitation><PMID>007</PMID></MedlineCitation></PubmedArticle>`,
			want: "007",
		},
		{
			name: "fallback to article id list",
			xml:  `<PubmedArticle><MedlineCitation/><PubmedData><ArticleIdList><ArticleId IdType="doi">10.1/x</ArticleId><ArticleId IdType="pubmed">456</ArticleId></ArticleIdList></PubmedData></PubmedArticle>`,
			want: "456",
		},
		{
			name: "empty pmid falls back",
			xml:  `<PubmedArticle><MedlineCitation><PMID> </PMID></MedlineCitation><PubmedData><ArticleIdList><ArticleId IdType="pubmed">789</ArticleId></ArticleIdList></PubmedData></PubmedArticle>`,
			want: "789",
		},
		{
			name:    "missing",
			xml:     `<PubmedArticle><MedlineCitation><Article/></MedlineCitation></PubmedArticle>`,
			wantErr: errs.ErrMissingPMID,
		},
		{
			name:    "not numeric",
			xml:     `<PubmedArticle><MedlineCitation><PMID>12a4</PMID></MedlineCitation></PubmedArticle>`,
			wantErr: errs.ErrInvalidPMID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PMID(parseElement(t, tt.xml))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PMID(nil)
	assert.ErrorIs(t, err, errs.ErrMissingPMID)
}

func TestDefault_FullArticle(t *testing.T) {
	el := loadArticle(t, "../../testdata/article.xml")
	rec := extractAll(t, el)
	m := rec.MetaInfo

	pmid, err := PMID(el)
	require.NoError(t, err)
	assert.Equal(t, "36464825", pmid)

	assert.Equal(t, "Effects of Helicobacter pylori eradication on gastric cancer1.", m.Title)
	assert.Equal(t, "Nature", m.Journal)
	assert.Equal(t, "Nature", m.JournalAbbrev)
	assert.Equal(t, "1476-4687", m.ISSN)
	assert.Equal(t, "2023 Jan 05", m.PublicationDate)
	assert.Equal(t, "10.1038/s41586-022-05481-1", m.DOI)
	assert.Equal(t, "PMC9876543", m.PMC)
	assert.Len(t, m.ArticleIDs, 4)
	assert.Equal(t, types.ArticleID{IDType: "pubmed", Value: "36464825"}, m.ArticleIDs[0])
	assert.Equal(t, []string{"gastric cancer", "H. pylori"}, m.Keywords)
	assert.Equal(t, []string{"eng"}, m.Languages)
	assert.Equal(t, "613", m.Volume)
	assert.Equal(t, "7942", m.Issue)
	assert.Equal(t, "96-103", m.Pages)
	assert.Equal(t, []types.PublicationType{
		{UI: "D016428", Name: "Journal Article"},
		{UI: "D016449", Name: "Randomized Controlled Trial"},
	}, m.PublicationTypes)
	assert.Equal(t, []types.HistoryDate{
		{Status: "received", Year: "2022", Month: "5", Day: "10"},
		{Status: "accepted", Year: "2022", Month: "11", Day: "2"},
	}, m.DatesHistory)

	assert.Equal(t, "BACKGROUND: Gastric cancer is common. Infection with H. pylori is a major risk factor.\n"+
		"METHODS: We enrolled 1,204 adults (Fig. 1).\n"+
		"RESULTS: Incidence fell by 46%2 (p < 0.05).\n"+
		"Funded by the NIH.", rec.Abstract)
	require.Len(t, rec.AbstractSections, 4)
	assert.Equal(t, "METHODS", rec.AbstractSections[1].Label)
	assert.Equal(t, "", rec.AbstractSections[3].Label)

	require.Len(t, rec.Authors, 3)
	assert.Equal(t, types.Author{
		Name:        "Jane A Smith",
		Affiliation: "Department of Medicine, University of Somewhere, Boston, MA, USA.",
		LastName:    "Smith",
		ForeName:    "Jane A",
		Initials:    "JA",
	}, rec.Authors[0])
	assert.Equal(t, "Jürgen Müller", rec.Authors[1].Name)
	assert.Equal(t, "Gastric Cancer Consortium", rec.Authors[2].Name)
	assert.Empty(t, rec.Authors[2].LastName)

	assert.Equal(t, []string{
		"D006801:Humans",
		"D013274:Stomach Neoplasms* / Q000453:epidemiology / Q000517:prevention & control*",
	}, rec.MeshTerms)

	assert.Equal(t, []types.Reference{
		{Citation: "Doe J. Gastric cancer epidemiology. Lancet. 2020;395:1-10.", PMID: "31234567", DOI: "10.1016/S0140-6736(20)00001-1"},
		{Citation: "Roe R. An unindexed report. 2019."},
	}, rec.References)
}

func TestDefault_MinimalArticle(t *testing.T) {
	el := parseElement(t, `<PubmedArticle><MedlineCitation><PMID>1</PMID></MedlineCitation></PubmedArticle>`)
	rec := extractAll(t, el)

	assert.Equal(t, types.ArticleRecord{}, *rec, "absent elements leave the record untouched")
}

func TestAbstract_Variants(t *testing.T) {
	tests := []struct {
		name         string
		xml          string
		want         string
		wantSections int
	}{
		{
			name: "single unlabelled",
			xml:  `<AbstractText>Just one paragraph.</AbstractText>`,
			want: "Just one paragraph.",
		},
		{
			name:         "single labelled",
			xml:          `<AbstractText Label="OBJECTIVE">Find it.</AbstractText>`,
			want:         "OBJECTIVE: Find it.",
			wantSections: 1,
		},
		{
			name:         "unlabelled paragraphs",
			xml:          `<AbstractText>First.</AbstractText><AbstractText>Second.</AbstractText>`,
			want:         "First.\nSecond.",
			wantSections: 2,
		},
		{
			name:         "empty section skipped",
			xml:          `<AbstractText Label="A">x</AbstractText><AbstractText/>`,
			want:         "A: x",
			wantSections: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := parseElement(t, `<PubmedArticle><MedlineCitation><Article><Abstract>`+tt.xml+`</Abstract></Article></MedlineCitation></PubmedArticle>`)
			rec := &types.ArticleRecord{}
			require.NoError(t, Abstract.Extract(el, rec))
			assert.Equal(t, tt.want, rec.Abstract)
			assert.Len(t, rec.AbstractSections, tt.wantSections)
		})
	}
}

func TestJournal_MedlineDate(t *testing.T) {
	el := parseElement(t, `<PubmedArticle><MedlineCitation><Article><Journal>
		<JournalIssue><PubDate><MedlineDate>2004 Jan-Feb</MedlineDate></PubDate></JournalIssue>
		<Title>The New England journal of medicine</Title></Journal></Article></MedlineCitation></PubmedArticle>`)
	rec := &types.ArticleRecord{}
	require.NoError(t, Journal.Extract(el, rec))
	assert.Equal(t, "2004 Jan-Feb", rec.MetaInfo.PublicationDate)
	assert.Equal(t, "The New England journal of medicine", rec.MetaInfo.Journal)
}

func TestArticleIDs_ELocationFallback(t *testing.T) {
	el := parseElement(t, `<PubmedArticle><MedlineCitation><Article>
		<ELocationID EIdType="pii">S0001</ELocationID>
		<ELocationID EIdType="doi">10.5555/abc</ELocationID>
		</Article></MedlineCitation></PubmedArticle>`)
	rec := &types.ArticleRecord{}
	require.NoError(t, ArticleIDs.Extract(el, rec))
	assert.Equal(t, "10.5555/abc", rec.MetaInfo.DOI)
	assert.Empty(t, rec.MetaInfo.ArticleIDs)
}

func TestPagination_StartEndFallback(t *testing.T) {
	el := parseElement(t, `<PubmedArticle><MedlineCitation><Article>
		<Pagination><StartPage>e12</StartPage><EndPage>e19</EndPage></Pagination>
		</Article></MedlineCitation></PubmedArticle>`)
	rec := &types.ArticleRecord{}
	require.NoError(t, Pagination.Extract(el, rec))
	assert.Equal(t, "e12-e19", rec.MetaInfo.Pages)
}

func TestMeshTerms_CorruptHeading(t *testing.T) {
	el := parseElement(t, `<PubmedArticle><MedlineCitation><MeshHeadingList>
		<MeshHeading><DescriptorName UI="D1">Ok</DescriptorName></MeshHeading>
		<MeshHeading><QualifierName UI="Q1">orphan</QualifierName></MeshHeading>
		</MeshHeadingList></MedlineCitation></PubmedArticle>`)
	rec := &types.ArticleRecord{}
	err := MeshTerms.Extract(el, rec)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Nil(t, rec.MeshTerms, "a failed field writes nothing")
}

func TestTitle_VernacularFallback(t *testing.T) {
	el := loadArticle(t, "../../testdata/set.xml")
	rec := &types.ArticleRecord{}
	require.NoError(t, Title.Extract(el, rec))
	assert.Equal(t, "Aspirin and cardiovascular risk.", rec.MetaInfo.Title)

	el = parseElement(t, `<PubmedArticle><MedlineCitation><Article><ArticleTitle/><VernacularTitle>Titre.</VernacularTitle></Article></MedlineCitation></PubmedArticle>`)
	rec = &types.ArticleRecord{}
	require.NoError(t, Title.Extract(el, rec))
	assert.Equal(t, "Titre.", rec.MetaInfo.Title)
}

func TestNewField(t *testing.T) {
	f := NewField("custom", func(_ *etree.Element, rec *types.ArticleRecord) error {
		rec.MetaInfo.Volume = "x"
		return nil
	})
	rec := &types.ArticleRecord{}
	require.NoError(t, f.Extract(nil, rec))
	assert.Equal(t, "custom", f.Name())
	assert.Equal(t, "x", rec.MetaInfo.Volume)
}
