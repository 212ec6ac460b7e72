package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/diligence/internal/chunker"
	"github.com/dgallion1/diligence/internal/fetch"
	"github.com/dgallion1/diligence/internal/metrics"
	"github.com/dgallion1/diligence/internal/pagerank"
	"github.com/dgallion1/diligence/internal/search"
	"golang.org/x/sync/errgroup"
)

// Searcher returns ranked links for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Fetcher downloads and parses one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// AuthorityProvider looks up domain-authority scores in bulk.
type AuthorityProvider interface {
	Lookup(ctx context.Context, domains []string) (map[string]pagerank.Authority, error)
}

// Document is one piece of evidence: a fetched page clipped to the page
// character budget, with an optional authority score for its domain.
type Document struct {
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Domain    string   `json:"domain"`
	Text      string   `json:"-"`
	Authority *float64 `json:"authority,omitempty"`
}

// Config controls retrieval behaviour.
type Config struct {
	MaxResults   int           // links taken from the search provider
	MaxPageChars int           // per-document text budget
	FetchRetries int           // extra attempts per link after the first failure
	RetryDelay   time.Duration // fixed delay between attempts
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		MaxResults:   3,
		MaxPageChars: 20000,
		FetchRetries: 1,
		RetryDelay:   time.Second,
	}
}

// Gateway turns a query into evidence documents. It holds no per-call state
// and is safe for concurrent use.
type Gateway struct {
	searcher  Searcher
	fetcher   Fetcher
	authority AuthorityProvider // nil disables enrichment
	cfg       Config
	log       *slog.Logger
}

func NewGateway(searcher Searcher, fetcher Fetcher, authority AuthorityProvider, cfg Config, log *slog.Logger) *Gateway {
	def := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = def.MaxPageChars
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Gateway{searcher: searcher, fetcher: fetcher, authority: authority, cfg: cfg, log: log}
}

// Retrieve searches for query, fetches the top links concurrently and
// returns the pages that could be read, in search rank order. It never
// fails: an unusable search or page yields fewer documents.
func (g *Gateway) Retrieve(ctx context.Context, query string) []Document {
	results, err := g.searcher.Search(ctx, query, g.cfg.MaxResults)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		g.log.Warn("search failed", "query", query, "error", err)
		return nil
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	if len(results) > g.cfg.MaxResults {
		results = results[:g.cfg.MaxResults]
	}

	slots := make([]*Document, len(results))
	var eg errgroup.Group
	for i, r := range results {
		eg.Go(func() error {
			slots[i] = g.fetchWithRetry(ctx, r)
			return nil
		})
	}
	eg.Wait()

	var docs []Document
	for _, d := range slots {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	g.enrich(ctx, docs)
	metrics.EvidenceDocuments.Observe(float64(len(docs)))
	return docs
}

func (g *Gateway) fetchWithRetry(ctx context.Context, r search.Result) *Document {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(g.cfg.RetryDelay):
			}
		}
		page, err := g.fetcher.Fetch(ctx, r.URL)
		if err != nil {
			lastErr = err
			continue
		}
		text := chunker.Clip(page.Tree, g.cfg.MaxPageChars)
		if text == "" {
			lastErr = errEmptyPage
			break
		}
		title := page.Title
		if title == "" {
			title = r.Title
		}
		return &Document{
			Title:  title,
			URL:    r.URL,
			Domain: NormalizeDomain(r.URL),
			Text:   text,
		}
	}
	g.log.Info("skipping source", "url", r.URL, "error", lastErr)
	return nil
}

var errEmptyPage = errors.New("page has no text")

// enrich left-joins authority scores onto docs by domain. Lookup failures
// and unknown domains leave Authority nil.
func (g *Gateway) enrich(ctx context.Context, docs []Document) {
	if g.authority == nil || len(docs) == 0 {
		return
	}
	seen := make(map[string]bool)
	var domains []string
	for _, d := range docs {
		if d.Domain != "" && !seen[d.Domain] {
			seen[d.Domain] = true
			domains = append(domains, d.Domain)
		}
	}
	scores, err := g.authority.Lookup(ctx, domains)
	if err != nil {
		g.log.Warn("authority lookup failed", "domains", len(domains), "error", err)
	}
	for i := range docs {
		if a, ok := scores[docs[i].Domain]; ok {
			pr := a.PageRank
			docs[i].Authority = &pr
		}
	}
}

// NormalizeDomain reduces a URL or bare host to its lower-cased host name
// without scheme, port or a leading "www.".
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
