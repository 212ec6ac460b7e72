package pagerank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://openpagerank.com"
	batchSize      = 100
)

// Authority is the domain-authority record for one domain.
type Authority struct {
	Domain   string  `json:"domain"`
	PageRank float64 `json:"page_rank"` // 0-10
	Rank     int     `json:"rank,omitempty"`
}

// Client communicates with the Open PageRank HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rankResponse struct {
	StatusCode int `json:"status_code"`
	Response   []struct {
		StatusCode      int     `json:"status_code"`
		Error           string  `json:"error"`
		PageRankDecimal float64 `json:"page_rank_decimal"`
		Rank            string  `json:"rank"`
		Domain          string  `json:"domain"`
	} `json:"response"`
}

// Lookup fetches authority scores for domains, batching requests. Results are
// keyed by lower-cased domain without a leading "www."; domains the provider
// does not know are absent.
func (c *Client) Lookup(ctx context.Context, domains []string) (map[string]Authority, error) {
	out := make(map[string]Authority, len(domains))
	for start := 0; start < len(domains); start += batchSize {
		end := min(start+batchSize, len(domains))
		if err := c.lookupBatch(ctx, domains[start:end], out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Client) lookupBatch(ctx context.Context, domains []string, out map[string]Authority) error {
	q := url.Values{}
	for _, d := range domains {
		q.Add("domains[]", d)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1.0/getPageRank?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("API-OPR", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("get page rank: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("get page rank: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode page rank: %w", err)
	}
	for _, r := range result.Response {
		if r.StatusCode != http.StatusOK || r.Domain == "" {
			continue
		}
		domain := normalizeDomain(r.Domain)
		a := Authority{Domain: domain, PageRank: r.PageRankDecimal}
		if n, err := strconv.Atoi(r.Rank); err == nil {
			a.Rank = n
		}
		out[domain] = a
	}
	return nil
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
