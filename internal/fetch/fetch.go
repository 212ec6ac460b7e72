package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/diligence/internal/doctree"
	"github.com/dgallion1/diligence/internal/metrics"
	"github.com/dgallion1/diligence/internal/parser"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxBytes  = 5 << 20
	DefaultUserAgent = "Mozilla/5.0 (compatible; diligence/1.0; +https://github.com/dgallion1/diligence)"
)

// ErrBlocked is returned for URLs that point at loopback, private or
// metadata addresses, or use a scheme other than http(s).
var ErrBlocked = errors.New("blocked url")

// Error describes a page that could not be fetched or parsed. StatusCode is
// zero when no HTTP response was received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Page is a fetched and parsed document.
type Page struct {
	URL         string
	Title       string
	ContentType string
	Tree        *doctree.DocTree
}

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration // per request, including body read
	MaxBytes  int64         // response bodies are cut at this size
	UserAgent string
	// AllowPrivate disables the private-address check. Tests use it to hit
	// httptest servers on loopback.
	AllowPrivate bool
}

// Fetcher downloads pages over HTTP and parses them by content type.
type Fetcher struct {
	opts       Options
	httpClient *http.Client
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	f := &Fetcher{opts: opts}
	f.httpClient = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			if !opts.AllowPrivate && isBlockedTarget(req.URL.String()) {
				return ErrBlocked
			}
			return nil
		},
	}
	return f
}

// Fetch downloads rawURL and parses it into a Page. Every failure is
// returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	page, err := f.fetch(ctx, rawURL)
	if err != nil {
		outcome := "error"
		var fe *Error
		if errors.As(err, &fe) && fe.Timeout() {
			outcome = "timeout"
		}
		metrics.PageFetches.WithLabelValues(outcome).Inc()
		return nil, err
	}
	metrics.PageFetches.WithLabelValues("ok").Inc()
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*Page, error) {
	if !f.opts.AllowPrivate && isBlockedTarget(rawURL) {
		return nil, &Error{URL: rawURL, Err: ErrBlocked}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	p, err := parser.ForContentType(contentType, resp.Request.URL.String())
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	tree, err := p.Parse(io.LimitReader(resp.Body, f.opts.MaxBytes), resp.Request.URL.String())
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	return &Page{
		URL:         rawURL,
		Title:       tree.Title,
		ContentType: contentType,
		Tree:        tree,
	}, nil
}

// isBlockedTarget rejects URLs aimed at the host itself, private networks or
// cloud metadata endpoints.
func isBlockedTarget(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return true
	}

	host := parsed.Hostname()
	switch strings.ToLower(host) {
	case "", "localhost", "metadata.google.internal", "metadata.google":
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
	}
	return false
}
