package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/diligence/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF documents linked from search results (annual
// reports, filings, investor decks). Each page becomes one section.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	tree := &doctree.DocTree{Title: nameTitle(name)}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Page %d", i),
			Text:  text,
			Page:  i,
		})
	}
	if len(tree.Children) == 0 {
		return nil, fmt.Errorf("pdf has no extractable text")
	}
	return tree, nil
}
