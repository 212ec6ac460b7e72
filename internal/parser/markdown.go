package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/diligence/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown pages (READMEs, raw docs) using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseMarkdown(src, nameTitle(name)), nil
}

// ParseMarkdown builds a heading-nested tree from Markdown source.
func ParseMarkdown(src []byte, fallbackTitle string) *doctree.DocTree {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	b := newTreeBuilder()
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			b.heading(h.Level, strings.TrimSpace(MarkdownText(h, src)))
			continue
		}
		b.paragraph(MarkdownText(n, src))
	}
	return b.tree(fallbackTitle)
}

// MarkdownText gets the text content of a goldmark AST node, dropping markup.
func MarkdownText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		s := MarkdownText(c, src)
		buf.WriteString(s)
		if c.Type() == ast.TypeBlock && s != "" {
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String())
}
