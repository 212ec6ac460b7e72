package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/dgallion1/diligence/internal/parser"
	"github.com/dgallion1/diligence/internal/research"
	"github.com/fumiama/go-docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders a run as a standalone HTML page. Raw HTML in model output is
// not passed through.
func HTML(res *research.Result) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(res)), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	title := Parse(res.Report, res.CompanyName+" Due Diligence").Title

	var out bytes.Buffer
	fmt.Fprintf(&out, `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: Inter, sans-serif; color: #082c54; max-width: 52rem; margin: 2rem auto; line-height: 1.5; }
li { margin: 0.4rem 0; }
</style>
</head>
<body>
`, html.EscapeString(title))
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

// DOCX writes a run as a Word document: title, abstract, report sections,
// then every question with its answer, follow-ups one heading level down.
func DOCX(w io.Writer, res *research.Result) error {
	o := Parse(res.Report, res.CompanyName+" Due Diligence")
	doc := docx.New().WithDefaultTheme()

	doc.AddParagraph().Style("Heading1").AddText(o.Title).Bold().Size("36")
	if res.Industry != "" {
		doc.AddParagraph().AddText(res.CompanyName + " (" + res.Industry + ")").Italic()
	}
	addMarkdown(doc, o.Abstract)
	for _, s := range o.Sections {
		doc.AddParagraph().Style("Heading2").AddText(s.Heading).Bold()
		addMarkdown(doc, s.Body)
	}

	doc.AddParagraph().Style("Heading2").AddText("Due Diligence Questions").Bold()
	var walk func(as []*research.Answer, level int)
	walk = func(as []*research.Answer, level int) {
		for _, a := range as {
			style := fmt.Sprintf("Heading%d", min(3+level, 6))
			doc.AddParagraph().Style(style).AddText(questionText(a)).Bold()
			if a.Error != "" {
				doc.AddParagraph().AddText("No answer: " + a.Error).Italic()
			} else {
				addMarkdown(doc, a.Text)
			}
			walk(a.SubAnswers, level+1)
		}
	}
	walk(res.Answers, 0)

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// addMarkdown adds one plain paragraph per Markdown block, markup removed.
func addMarkdown(doc *docx.Docx, src string) {
	if strings.TrimSpace(src) == "" {
		return
	}
	tree := parser.ParseMarkdown([]byte(src), "")
	for _, para := range strings.Split(tree.PlainText(), "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			doc.AddParagraph().AddText(para)
		}
	}
}
