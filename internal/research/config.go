package research

import "time"

// Models names the model used for each role.
type Models struct {
	Questions string
	Summary   string
	Answer    string
	Report    string
}

// Config holds the research knobs. Zero values take the defaults below.
type Config struct {
	TargetQuestions   int // top-level questions per run
	FollowUpQuestions int // follow-ups per answer while depth allows
	MaxDepth          int // deepest question depth; top-level is 0
	QuestionTurns     int // model turns allowed per Generate call
	OuterWidth        int // concurrent depth-0 answers
	InnerWidth        int // concurrent answers at each deeper level

	TaskTimeout time.Duration // per top-level or follow-up answer; 0 = none
	RunTimeout  time.Duration // whole run; 0 = none

	Models      Models
	Temperature float64
	TopP        float64 // 0 leaves top_p unset

	Summarize       bool // summarize each source before answering
	RewriteQueries  bool // ask the model for a search query per question
	ReportFollowUps bool // feed follow-up pairs into the report, not just depth 0
}

const (
	answerMaxTokens   = 512
	summaryMaxTokens  = 512
	questionMaxTokens = 1024
	queryMaxTokens    = 64
	reportMaxTokens   = 1024
)

func DefaultConfig() Config {
	return Config{
		TargetQuestions:   5,
		FollowUpQuestions: 3,
		MaxDepth:          1,
		QuestionTurns:     6,
		OuterWidth:        4,
		InnerWidth:        4,
		TaskTimeout:       5 * time.Minute,
		RunTimeout:        30 * time.Minute,
		Models: Models{
			Questions: "claude-sonnet-4-5",
			Summary:   "claude-haiku-4-5",
			Answer:    "claude-sonnet-4-5",
			Report:    "claude-sonnet-4-5",
		},
		Temperature: 0.5,
		Summarize:   true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TargetQuestions <= 0 {
		c.TargetQuestions = d.TargetQuestions
	}
	if c.FollowUpQuestions <= 0 {
		c.FollowUpQuestions = d.FollowUpQuestions
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	if c.QuestionTurns <= 0 {
		c.QuestionTurns = d.QuestionTurns
	}
	if c.OuterWidth <= 0 {
		c.OuterWidth = d.OuterWidth
	}
	if c.InnerWidth <= 0 {
		c.InnerWidth = d.InnerWidth
	}
	if c.Models.Questions == "" {
		c.Models.Questions = d.Models.Questions
	}
	if c.Models.Summary == "" {
		c.Models.Summary = d.Models.Summary
	}
	if c.Models.Answer == "" {
		c.Models.Answer = d.Models.Answer
	}
	if c.Models.Report == "" {
		c.Models.Report = d.Models.Report
	}
	return c
}
