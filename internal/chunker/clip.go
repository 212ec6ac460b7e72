package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/diligence/internal/doctree"
)

// Clip renders a DocTree as evidence text no longer than maxChars. Section
// headings are kept as breadcrumb lines so the model sees where a passage
// came from. Text is cut at a paragraph boundary where possible, then at a
// sentence boundary, and only as a last resort mid-sentence. maxChars <= 0
// disables the limit.
func Clip(tree *doctree.DocTree, maxChars int) string {
	var blocks []string
	tree.Walk(func(n *doctree.DocNode, breadcrumb []string) {
		if n.Text == "" {
			return
		}
		if len(breadcrumb) > 0 {
			blocks = append(blocks, "## "+strings.Join(breadcrumb, " > "))
		}
		blocks = append(blocks, splitByParagraphs(n.Text)...)
	})
	return ClipText(strings.Join(blocks, "\n\n"), maxChars)
}

// ClipText applies the same boundary rules as Clip to flat text. Lengths
// are counted in characters (runes), not bytes.
func ClipText(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	var out strings.Builder
	n := 0 // runes written to out
	for _, para := range splitByParagraphs(text) {
		sep := 0
		if n > 0 {
			sep = 2
		}
		if size := utf8.RuneCountInString(para); n+sep+size <= maxChars {
			if sep > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString(para)
			n += sep + size
			continue
		}

		// Paragraph does not fit: take whole sentences from it.
		for _, sent := range splitSentences(para) {
			sep := 0
			if n > 0 {
				sep = 1
			}
			size := utf8.RuneCountInString(sent)
			if n+sep+size > maxChars {
				break
			}
			if sep > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(sent)
			n += sep + size
		}
		break
	}

	if n == 0 {
		return cutRunes(text, maxChars)
	}
	return out.String()
}

// cutRunes keeps the first maxRunes characters of s.
func cutRunes(s string, maxRunes int) string {
	count := 0
	for i := range s {
		if count == maxRunes {
			return s[:i]
		}
		count++
	}
	return s
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}
