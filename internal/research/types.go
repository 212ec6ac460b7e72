package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/diligence/internal/retrieval"
)

// ErrInvalidRequest is returned by Run for requests it cannot start.
var ErrInvalidRequest = errors.New("invalid research request")

// Stage is a research run's position in its lifecycle.
type Stage string

const (
	StageInit               Stage = "INIT"
	StageQuestionsGenerated Stage = "QUESTIONS_GENERATED"
	StageAnswering          Stage = "ANSWERING"
	StageReporting          Stage = "REPORTING"
	StageDone               Stage = "DONE"
	StageFailed             Stage = "FAILED"
)

// Request starts one research run.
type Request struct {
	Company       string   `json:"company_name"`
	Industry      string   `json:"industry,omitempty"`
	Topics        []string `json:"prompts,omitempty"`
	CorrelationID string   `json:"uuid,omitempty"`
}

// Question is one node of the question tree. Depth 0 is the top-level set;
// a follow-up always sits exactly one level below its parent.
type Question struct {
	ID       string    `json:"id"`
	Text     string    `json:"question"`
	Depth    int       `json:"depth"`
	ParentID string    `json:"parent_id,omitempty"`
	Parent   *Question `json:"-"`
}

// Child returns the n-th (1-based) follow-up of q.
func (q *Question) Child(n int, text string) *Question {
	return &Question{
		ID:       fmt.Sprintf("%s.%d", q.ID, n),
		Text:     text,
		Depth:    q.Depth + 1,
		ParentID: q.ID,
		Parent:   q,
	}
}

// Answer is the synthesized answer to one Question plus the answers to its
// follow-ups. A non-empty Error marks an answer that could not be produced.
type Answer struct {
	Question   *Question            `json:"-"`
	Text       string               `json:"result"`
	Depth      int                  `json:"depth"`
	SubAnswers []*Answer            `json:"other_questions"`
	Sources    []retrieval.Document `json:"sources,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// MarshalJSON flattens the question into the answer so a tree reads as
// {question, result, depth, other_questions}.
func (a *Answer) MarshalJSON() ([]byte, error) {
	type plain Answer
	subs := a.SubAnswers
	if subs == nil {
		subs = []*Answer{}
	}
	var id, text string
	if a.Question != nil {
		id, text = a.Question.ID, a.Question.Text
	}
	return json.Marshal(struct {
		ID       string `json:"id"`
		Question string `json:"question"`
		*plain
		SubAnswers []*Answer `json:"other_questions"`
	}{ID: id, Question: text, plain: (*plain)(a), SubAnswers: subs})
}

// Failed reports whether this answer or any answer below it carries an
// error marker.
func (a *Answer) Failed() bool {
	if a.Error != "" {
		return true
	}
	for _, s := range a.SubAnswers {
		if s.Failed() {
			return true
		}
	}
	return false
}

// Pair is one flattened question/answer pair handed to report synthesis.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Depth    int    `json:"depth"`
}

// Flatten walks answers depth-first in order, skipping answers that failed.
func Flatten(answers []*Answer) []Pair {
	var out []Pair
	var walk func([]*Answer)
	walk = func(as []*Answer) {
		for _, a := range as {
			if a.Error == "" && a.Question != nil {
				out = append(out, Pair{Question: a.Question.Text, Answer: a.Text, Depth: a.Depth})
			}
			walk(a.SubAnswers)
		}
	}
	walk(answers)
	return out
}

// Result is the outcome of one research run. Answers holds one entry per
// top-level question in the order the questions were generated.
type Result struct {
	RunID       string    `json:"run_id"`
	CompanyName string    `json:"company_name"`
	Industry    string    `json:"industry,omitempty"`
	Report      string    `json:"report"`
	Answers     []*Answer `json:"answers"`
	Degraded    bool      `json:"degraded"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
