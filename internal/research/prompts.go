package research

import (
	"fmt"
	"strings"

	"github.com/dgallion1/diligence/internal/chunker"
	"github.com/dgallion1/diligence/internal/llm"
	"github.com/dgallion1/diligence/internal/retrieval"
)

// NoEvidence is written into the answer prompt when retrieval found nothing.
const NoEvidence = "No evidence available: the web search returned no readable sources for this question."

// FocusTopics are the analysis areas a caller may ask the question set to
// concentrate on.
var FocusTopics = []string{
	"Operations and Management",
	"Market Risks",
	"Competitor Analysis",
	"Potential Concerns",
	"Industry Benchmarks",
	"Legal Standing",
}

const recordQuestionTool = "record_question"

var questionTool = llm.Tool{
	Name:        recordQuestionTool,
	Description: "Record one due-diligence question. Call once per question.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "A single, specific, self-contained research question.",
			},
		},
		"required": []string{"question"},
	},
}

const questionSystem = `You are a due-diligence analyst preparing research questions about a company for an investment committee.
Record every question with the record_question tool, one call per question. Do not answer the questions and do not write prose.`

func topLevelQuestionPrompt(company, industry string, topics []string, target int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", company)
	if industry != "" {
		fmt.Fprintf(&sb, "Industry: %s\n", industry)
	}
	fmt.Fprintf(&sb, "\nWrite %d due-diligence questions that together cover what an investor must know about this company: "+
		"business model, financial health, management, market position and material risks.\n", target)
	if len(topics) > 0 {
		fmt.Fprintf(&sb, "Concentrate on these areas: %s.\n", strings.Join(topics, "; "))
	}
	sb.WriteString("Each question must be answerable from public web sources.")
	return sb.String()
}

func followUpQuestionPrompt(company string, parent *Question, sources []retrieval.Document, target int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\nQuestion under investigation: %s\n\n", company, parent.Text)
	sb.WriteString("Sources gathered so far:\n")
	writeEvidence(&sb, sources, 4000)
	fmt.Fprintf(&sb, "\nWrite %d critical follow-up questions that probe gaps, contradictions or red flags in these sources. "+
		"Every question must name %q explicitly.", target, company)
	return sb.String()
}

func nudgePrompt(missing int) string {
	return fmt.Sprintf("Please provide %d more questions using the record_question tool.", missing)
}

const summarySystem = `You condense web pages into evidence for a due-diligence analyst. Keep names, figures, dates and claims. Drop navigation, marketing and boilerplate.`

func summaryPrompt(company, question string, doc retrieval.Document) string {
	return fmt.Sprintf("Company: %s\nQuestion: %s\nSource: %s (%s)\n\nSummarize what this source says that is relevant to the question in at most 200 words.\n\n---\n%s",
		company, question, doc.Title, doc.URL, doc.Text)
}

func queryPrompt(company, question string) string {
	return fmt.Sprintf("Write one Google search query that would find web pages answering this question about %s. "+
		"Reply with the query only, no quotes or explanation.\n\nQuestion: %s", company, question)
}

const answerSystem = `You are a due-diligence analyst. Answer the question about the company using the evidence provided. Cite sources by title where you rely on them. If the evidence is missing or insufficient, say so and give your best assessment from general knowledge, clearly labelled as such.`

func answerPrompt(company, industry, question string, evidence []retrieval.Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", company)
	if industry != "" {
		fmt.Fprintf(&sb, "Industry: %s\n", industry)
	}
	fmt.Fprintf(&sb, "Question: %s\n\nEvidence:\n", question)
	writeEvidence(&sb, evidence, 0)
	return sb.String()
}

// writeEvidence lists sources with their text. maxChars > 0 clips each text.
func writeEvidence(sb *strings.Builder, docs []retrieval.Document, maxChars int) {
	if len(docs) == 0 {
		sb.WriteString(NoEvidence)
		sb.WriteByte('\n')
		return
	}
	for i, d := range docs {
		text := chunker.ClipText(d.Text, maxChars)
		fmt.Fprintf(sb, "[%d] %s (%s)", i+1, d.Title, d.URL)
		if d.Authority != nil {
			fmt.Fprintf(sb, " authority %.1f/10", *d.Authority)
		}
		fmt.Fprintf(sb, "\n%s\n\n", text)
	}
}

const reportSystem = `You are a senior equity research analyst writing a due-diligence report for an investment committee. Be factual, balanced and specific. Flag risks plainly.`

func reportPrompt(company, industry string, pairs []Pair) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a due-diligence report on %s", company)
	if industry != "" {
		fmt.Fprintf(&sb, " (%s)", industry)
	}
	sb.WriteString(" from the research data below.\n" +
		"Format: the first line is the report title on its own. Then one abstract paragraph. " +
		"Then sections, each starting with a '## ' heading, ending with a recommendation.\n\nResearch data:\n")
	for _, p := range pairs {
		fmt.Fprintf(&sb, "\nQ: %s\nA: %s\n", p.Question, p.Answer)
	}
	return sb.String()
}
