package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultEndpoint = "https://google.serper.dev/search"

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Rank    int    `json:"rank"`
}

// Serper queries the Serper Google search API. Requests are paced by a
// token-bucket limiter shared by every caller of the same Serper value.
type Serper struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSerper creates a client allowing qps requests per second (burst 1).
// qps <= 0 disables pacing.
func NewSerper(apiKey string, qps float64) *Serper {
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	return NewSerperWithClient(apiKey, DefaultEndpoint, &http.Client{Timeout: 15 * time.Second}, rate.NewLimiter(limit, 1))
}

func NewSerperWithClient(apiKey, endpoint string, client *http.Client, limiter *rate.Limiter) *Serper {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Serper{apiKey: apiKey, endpoint: endpoint, httpClient: client, limiter: limiter}
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

// Search returns up to limit organic results in rank order.
func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, errors.New("serper: api key not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("serper: wait for rate limiter: %w", err)
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: limit})
	if err != nil {
		return nil, fmt.Errorf("serper: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("serper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	var results []Result
	for _, o := range parsed.Organic {
		if o.Link == "" {
			continue
		}
		rank := o.Position
		if rank == 0 {
			rank = len(results) + 1
		}
		results = append(results, Result{Title: o.Title, URL: o.Link, Snippet: o.Snippet, Rank: rank})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
