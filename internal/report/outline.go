package report

import (
	"strings"

	"github.com/dgallion1/diligence/internal/research"
)

// Section is one headed section of a report.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Outline is a report split into its parts: the first line is the title and
// the text up to the first heading is the abstract.
type Outline struct {
	Title    string    `json:"title"`
	Abstract string    `json:"abstract"`
	Sections []Section `json:"sections"`
}

// Parse splits report text into an Outline. A report without a title line
// gets fallbackTitle.
func Parse(report, fallbackTitle string) Outline {
	report = strings.TrimSpace(report)
	first, rest, _ := strings.Cut(report, "\n")
	out := Outline{Title: strings.TrimSpace(strings.TrimLeft(first, "#* "))}
	out.Title = strings.TrimRight(out.Title, "* ")
	if out.Title == "" {
		out.Title = fallbackTitle
	}

	var body []string
	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if len(out.Sections) == 0 {
			out.Abstract = text
			return
		}
		out.Sections[len(out.Sections)-1].Body = text
	}
	for _, line := range strings.Split(rest, "\n") {
		if h, ok := headingText(line); ok {
			flush()
			out.Sections = append(out.Sections, Section{Heading: h})
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

// headingText recognizes ATX headings ("## Risks").
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	h := strings.TrimLeft(trimmed, "#")
	if len(trimmed)-len(h) > 6 || (h != "" && h[0] != ' ') {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(h, "# ")), true
}

// Markdown renders a run as one Markdown document: the report with its title
// as a level-1 heading, followed by the answer tree.
func Markdown(res *research.Result) string {
	o := Parse(res.Report, res.CompanyName+" Due Diligence")
	var sb strings.Builder
	sb.WriteString("# " + o.Title + "\n\n")
	if o.Abstract != "" {
		sb.WriteString(o.Abstract + "\n\n")
	}
	for _, s := range o.Sections {
		sb.WriteString("## " + s.Heading + "\n\n")
		if s.Body != "" {
			sb.WriteString(s.Body + "\n\n")
		}
	}

	sb.WriteString("## Due Diligence Questions\n")
	var walk func(as []*research.Answer, level int)
	walk = func(as []*research.Answer, level int) {
		for _, a := range as {
			indent := strings.Repeat("  ", level)
			sb.WriteString("\n" + indent + "- **" + questionText(a) + "**\n")
			body := a.Text
			if a.Error != "" {
				body = "_No answer: " + a.Error + "_"
			}
			for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
				if strings.TrimSpace(line) == "" {
					continue
				}
				sb.WriteString(indent + "  " + line + "\n")
			}
			walk(a.SubAnswers, level+1)
		}
	}
	walk(res.Answers, 0)
	return sb.String()
}

func questionText(a *research.Answer) string {
	if a.Question == nil {
		return ""
	}
	return a.Question.Text
}
