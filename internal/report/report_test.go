package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dgallion1/diligence/internal/parser"
	"github.com/dgallion1/diligence/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeReport = `Acme Corp: Due Diligence Summary
Acme Corp is a **profitable** widget maker with concentrated customers.

## Business Model
Acme sells widgets to retailers.

- Wholesale
- Direct

## Risks
Customer concentration.

## Recommendation
Proceed with caution.`

func acmeResult() *research.Result {
	q1 := &research.Question{ID: "q1", Text: "What does Acme Corp sell?"}
	q2 := &research.Question{ID: "q2", Text: "Who runs Acme Corp?"}
	return &research.Result{
		RunID:       "run-1",
		CompanyName: "Acme Corp",
		Industry:    "Manufacturing",
		Report:      acmeReport,
		Answers: []*research.Answer{
			{Question: q1, Text: "Widgets.", SubAnswers: []*research.Answer{
				{Question: q1.Child(1, "Who buys Acme Corp widgets?"), Text: "Retailers.", Depth: 1},
			}},
			{Question: q2, Error: "model unavailable"},
		},
	}
}

func TestParse_Outline(t *testing.T) {
	o := Parse(acmeReport, "fallback")
	assert.Equal(t, "Acme Corp: Due Diligence Summary", o.Title)
	assert.Equal(t, "Acme Corp is a **profitable** widget maker with concentrated customers.", o.Abstract)
	require.Len(t, o.Sections, 3)
	assert.Equal(t, "Business Model", o.Sections[0].Heading)
	assert.Equal(t, "Acme sells widgets to retailers.\n\n- Wholesale\n- Direct", o.Sections[0].Body)
	assert.Equal(t, "Recommendation", o.Sections[2].Heading)
	assert.Equal(t, "Proceed with caution.", o.Sections[2].Body)
}

func TestParse_MarkdownTitleAndNoSections(t *testing.T) {
	o := Parse("# **Acme Report**\nJust an abstract.", "fallback")
	assert.Equal(t, "Acme Report", o.Title)
	assert.Equal(t, "Just an abstract.", o.Abstract)
	assert.Empty(t, o.Sections)

	o = Parse("", "Acme Corp Due Diligence")
	assert.Equal(t, "Acme Corp Due Diligence", o.Title)
}

func TestHeadingText(t *testing.T) {
	h, ok := headingText("## Risks ##")
	assert.True(t, ok)
	assert.Equal(t, "Risks", h)

	_, ok = headingText("#hashtag")
	assert.False(t, ok)
	_, ok = headingText("Plain line")
	assert.False(t, ok)
}

func TestMarkdown_IncludesAnswerTree(t *testing.T) {
	out := Markdown(acmeResult())
	assert.True(t, strings.HasPrefix(out, "# Acme Corp: Due Diligence Summary\n"))
	assert.Contains(t, out, "## Risks")
	assert.Contains(t, out, "- **What does Acme Corp sell?**\n  Widgets.\n")
	assert.Contains(t, out, "  - **Who buys Acme Corp widgets?**\n    Retailers.\n")
	assert.Contains(t, out, "_No answer: model unavailable_")
}

func TestHTML(t *testing.T) {
	res := acmeResult()
	res.Report += "\n<script>alert(1)</script>"
	page, err := HTML(res)
	require.NoError(t, err)

	s := string(page)
	assert.Contains(t, s, "<title>Acme Corp: Due Diligence Summary</title>")
	assert.Contains(t, s, "<h2>Business Model</h2>")
	assert.Contains(t, s, "<strong>profitable</strong>")
	assert.Contains(t, s, "<li>Wholesale</li>")
	assert.NotContains(t, s, "<script>")
}

func TestDOCX_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DOCX(&buf, acmeResult()))
	require.NotZero(t, buf.Len())

	tree, err := (&parser.DOCXParser{}).Parse(bytes.NewReader(buf.Bytes()), "acme.docx")
	require.NoError(t, err)
	text := tree.PlainText()
	assert.Contains(t, text, "Acme Corp: Due Diligence Summary")
	assert.Contains(t, text, "Acme Corp is a profitable widget maker")
	assert.NotContains(t, text, "**")
	assert.Contains(t, text, "Who buys Acme Corp widgets?")
	assert.Contains(t, text, "No answer: model unavailable")
}
