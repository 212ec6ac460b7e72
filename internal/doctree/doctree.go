package doctree

import "strings"

// DocTree is the parsed structure of one fetched page or file.
type DocTree struct {
	Title    string     // Page title (from <title>, metadata or the URL)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// Walk visits every node depth-first in document order. The breadcrumb holds
// the headings of the enclosing sections, including the node's own title.
func (t *DocTree) Walk(fn func(n *DocNode, breadcrumb []string)) {
	var walk func(nodes []*DocNode, bc []string)
	walk = func(nodes []*DocNode, bc []string) {
		for _, n := range nodes {
			crumb := bc
			if n.Title != "" {
				crumb = append(bc[:len(bc):len(bc)], n.Title)
			}
			fn(n, crumb)
			walk(n.Children, crumb)
		}
	}
	walk(t.Children, nil)
}

// PlainText joins section titles and text in document order.
func (t *DocTree) PlainText() string {
	var sb strings.Builder
	t.Walk(func(n *DocNode, _ []string) {
		for _, s := range []string{n.Title, n.Text} {
			if s == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(s)
		}
	})
	return sb.String()
}

// IsEmpty reports whether the tree carries no text at all.
func (t *DocTree) IsEmpty() bool {
	empty := true
	t.Walk(func(n *DocNode, _ []string) {
		if strings.TrimSpace(n.Text) != "" {
			empty = false
		}
	})
	return empty
}
