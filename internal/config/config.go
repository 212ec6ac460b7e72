package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxModelRetries bounds throttle retries; with backoff capped at 30s a call
// waits at most a few minutes before giving up.
const maxModelRetries = 5

type Config struct {
	Port string

	// Auth
	DiligenceAPIKey string
	CORSOrigins     []string

	// Model endpoint
	AnthropicAPIKey string
	AnthropicURL    string
	MaxModelRetries int

	// Model ids per role
	QuestionModel string
	SummaryModel  string
	AnswerModel   string
	ReportModel   string
	Temperature   float64
	TopP          float64

	// Search and fetch
	SerperAPIKey   string
	SearchQPS      float64
	MaxResults     int
	FetchTimeout   time.Duration
	FetchRetries   int
	FetchDelay     time.Duration
	MaxPageChars   int
	MaxPageBytes   int64
	PageRankAPIKey string // empty disables authority enrichment
	PageRankURL    string

	// Research shape
	TargetQuestions   int
	FollowUpQuestions int
	MaxDepth          int
	QuestionTurns     int
	OuterWidth        int
	InnerWidth        int
	TaskTimeout       time.Duration
	RunTimeout        time.Duration
	Summarize         bool
	RewriteQueries    bool
	ReportFollowUps   bool

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Job state
	JobTTL time.Duration

	// Persistence
	RedisURL    string // empty keeps summaries in memory
	SummaryTTL  time.Duration
	SessionPath string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		DiligenceAPIKey: os.Getenv("DILIGENCE_API_KEY"),
		CORSOrigins:     envList("CORS_ORIGINS", []string{"*"}),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicURL:    envOr("ANTHROPIC_URL", "https://api.anthropic.com/v1/messages"),
		MaxModelRetries: envInt("MAX_MODEL_RETRIES", maxModelRetries),

		QuestionModel: envOr("QUESTION_MODEL", "claude-sonnet-4-5"),
		SummaryModel:  envOr("SUMMARY_MODEL", "claude-haiku-4-5"),
		AnswerModel:   envOr("ANSWER_MODEL", "claude-sonnet-4-5"),
		ReportModel:   envOr("REPORT_MODEL", "claude-sonnet-4-5"),
		Temperature:   envFloat("TEMPERATURE", 0.5),
		TopP:          envFloat("TOP_P", 0),

		SerperAPIKey:   os.Getenv("SERPER_API_KEY"),
		SearchQPS:      envFloat("SEARCH_QPS", 5),
		MaxResults:     envInt("MAX_RESULTS", 3),
		FetchTimeout:   envDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:   envInt("FETCH_RETRIES", 1),
		FetchDelay:     envDuration("FETCH_RETRY_DELAY", 1*time.Second),
		MaxPageChars:   envInt("MAX_PAGE_CHARS", 20000),
		MaxPageBytes:   envInt64("MAX_PAGE_BYTES", 5242880), // 5MB
		PageRankAPIKey: os.Getenv("PAGERANK_API_KEY"),
		PageRankURL:    envOr("PAGERANK_URL", "https://openpagerank.com"),

		TargetQuestions:   envInt("TARGET_QUESTIONS", 5),
		FollowUpQuestions: envInt("FOLLOW_UP_QUESTIONS", 3),
		MaxDepth:          envInt("MAX_DEPTH", 1),
		QuestionTurns:     envInt("QUESTION_TURNS", 6),
		OuterWidth:        envInt("OUTER_WIDTH", 4),
		InnerWidth:        envInt("INNER_WIDTH", 4),
		TaskTimeout:       envDuration("TASK_TIMEOUT", 5*time.Minute),
		RunTimeout:        envDuration("RUN_TIMEOUT", 30*time.Minute),
		Summarize:         envBool("SUMMARIZE_SOURCES", true),
		RewriteQueries:    envBool("REWRITE_QUERIES", false),
		ReportFollowUps:   envBool("REPORT_FOLLOW_UPS", false),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		RedisURL:    os.Getenv("REDIS_URL"),
		SummaryTTL:  envDuration("SUMMARY_TTL", 0),
		SessionPath: envOr("SESSION_DB", "sessions.db"),
	}

	if cfg.MaxModelRetries <= 0 || cfg.MaxModelRetries > maxModelRetries {
		cfg.MaxModelRetries = maxModelRetries
	}
	if cfg.SearchQPS <= 0 {
		cfg.SearchQPS = 5
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = 20000
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 5242880
	}
	if cfg.TargetQuestions <= 0 {
		cfg.TargetQuestions = 5
	}
	if cfg.FollowUpQuestions <= 0 {
		cfg.FollowUpQuestions = 3
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.QuestionTurns <= 0 {
		cfg.QuestionTurns = 6
	}
	if cfg.OuterWidth <= 0 {
		cfg.OuterWidth = 4
	}
	if cfg.InnerWidth <= 0 {
		cfg.InnerWidth = 4
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

// WriteTimeout is the HTTP write deadline. /api/analyze holds the connection
// for a whole run, so it is RunTimeout plus a minute, or none when runs are
// unbounded.
func (c Config) WriteTimeout() time.Duration {
	if c.RunTimeout <= 0 {
		return 0
	}
	return c.RunTimeout + time.Minute
}

func (c Config) Validate() error {
	var errs []error
	if c.AnthropicAPIKey == "" {
		errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY is required"))
	}
	if c.SerperAPIKey == "" {
		errs = append(errs, fmt.Errorf("SERPER_API_KEY is required"))
	}
	if c.DiligenceAPIKey == "" {
		errs = append(errs, fmt.Errorf("DILIGENCE_API_KEY is required"))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("TEMPERATURE must be within [0, 1], got %v", c.Temperature))
	}
	if c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("TOP_P must be within [0, 1], got %v", c.TopP))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
