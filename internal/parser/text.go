package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/diligence/internal/doctree"
)

// TextParser handles plain text responses. Blank lines separate paragraphs
// and each paragraph becomes one node.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, name string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tree := &doctree.DocTree{Title: nameTitle(name)}
	var current []string
	flush := func() {
		if len(current) > 0 {
			tree.Children = append(tree.Children, &doctree.DocNode{Text: strings.Join(current, "\n")})
			current = nil
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return tree, nil
}
