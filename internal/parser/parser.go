package parser

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/dgallion1/diligence/internal/doctree"
)

// Parser converts raw page bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, name string) (*doctree.DocTree, error)
}

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ForContentType picks a parser from a response Content-Type, falling back to
// the URL's file extension when the server sends a generic type.
func ForContentType(contentType, rawURL string) (Parser, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return &HTMLParser{}, nil
	case "application/pdf":
		return &PDFParser{}, nil
	case docxMIME:
		return &DOCXParser{}, nil
	case "text/markdown", "text/x-markdown":
		return &MarkdownParser{}, nil
	case "text/plain":
		if p, err := ForFile(urlPath(rawURL)); err == nil {
			return p, nil
		}
		return &TextParser{}, nil
	case "", "application/octet-stream", "binary/octet-stream":
		return ForFile(urlPath(rawURL))
	}
	return nil, fmt.Errorf("unsupported content type: %s", mediaType)
}

// ForFile returns the parser for a file name or URL path by extension.
func ForFile(name string) (Parser, error) {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm", "":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// nameTitle derives a fallback title from a URL or file name.
func nameTitle(name string) string {
	base := path.Base(urlPath(name))
	if base == "/" || base == "." || base == "" {
		return name
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// treeBuilder nests sections by heading level while collecting paragraph
// text under the innermost open section.
type treeBuilder struct {
	root  *doctree.DocNode
	stack []builderEntry
	text  strings.Builder
}

type builderEntry struct {
	node  *doctree.DocNode
	level int
}

func newTreeBuilder() *treeBuilder {
	root := &doctree.DocNode{}
	return &treeBuilder{root: root, stack: []builderEntry{{node: root}}}
}

func (b *treeBuilder) heading(level int, title string) {
	b.flush()
	n := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, builderEntry{node: n, level: level})
}

func (b *treeBuilder) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(t)
}

func (b *treeBuilder) flush() {
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

func (b *treeBuilder) tree(title string) *doctree.DocTree {
	b.flush()
	tree := &doctree.DocTree{Title: title, Children: b.root.Children}
	// Text before the first heading becomes a leading untitled section.
	if b.root.Text != "" {
		tree.Children = append([]*doctree.DocNode{{Text: b.root.Text}}, tree.Children...)
	}
	return tree
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
