package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/diligence/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser extracts the readable text of a web page.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := pageTitle(doc)
	if title == "" {
		title = nameTitle(name)
	}

	b := newTreeBuilder()
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.DataAtom); level > 0 {
				if t := textContent(n); t != "" {
					b.heading(level, t)
				}
				return
			}
			switch n.DataAtom {
			case atom.Header:
				// Only the page banner; an <article>'s own header holds its title.
				if n.Parent != nil && n.Parent.DataAtom == atom.Body {
					return
				}
			case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer,
				atom.Aside, atom.Form, atom.Svg, atom.Iframe, atom.Template, atom.Button:
				return
			case atom.P, atom.Li, atom.Td, atom.Th, atom.Blockquote, atom.Pre,
				atom.Dd, atom.Dt, atom.Figcaption, atom.Caption:
				b.paragraph(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		body = doc
	}
	walk(body)
	tree := b.tree(title)

	// Pages that keep their copy in bare <div>s yield nothing above; take the
	// whole body text instead.
	if tree.IsEmpty() {
		if t := textContent(body); t != "" {
			tree.Children = []*doctree.DocNode{{Text: t}}
		}
	}
	return tree, nil
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// textContent returns the visible text under n with whitespace collapsed.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return collapseSpace(buf.String())
}

// pageTitle prefers <title>, then og:title, then the first <h1>.
func pageTitle(doc *html.Node) string {
	if t := findElement(doc, atom.Title); t != nil {
		if s := textContent(t); s != "" {
			return s
		}
	}
	var og string
	var find func(*html.Node)
	find = func(n *html.Node) {
		if og != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta && attr(n, "property") == "og:title" {
			og = collapseSpace(attr(n, "content"))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if og != "" {
		return og
	}
	if h := findElement(doc, atom.H1); h != nil {
		return textContent(h)
	}
	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
