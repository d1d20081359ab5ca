package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	DefaultAPIURL       = "https://www.googleapis.com/customsearch/v1"
	DefaultPageSize     = 10
	DefaultRequestLimit = 30 * time.Second
	userAgent           = "dork-runner/1.0 (+https://github.com/lepinkainen/dork-runner)"
	validateSnippetLen  = 60
)

// SearchClient issues a single search request against the external API
type SearchClient interface {
	Search(ctx context.Context, query string, pageSize int) ([]SearchItem, error)
}

// GoogleClient talks to the Google Custom Search JSON API
type GoogleClient struct {
	baseURL    string
	creds      Credentials
	safeSearch bool
	client     *http.Client
}

// GoogleClientOption configures a GoogleClient
type GoogleClientOption func(*GoogleClient)

// WithBaseURL points the client at a different endpoint
func WithBaseURL(u string) GoogleClientOption {
	return func(c *GoogleClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithSafeSearch enables SafeSearch filtering on every request
func WithSafeSearch(on bool) GoogleClientOption {
	return func(c *GoogleClient) { c.safeSearch = on }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) GoogleClientOption {
	return func(c *GoogleClient) { c.client = hc }
}

// NewGoogleClient creates a Custom Search client for the given credentials
func NewGoogleClient(creds Credentials, opts ...GoogleClientOption) (*GoogleClient, error) {
	if creds.APIKey == "" || creds.CSEID == "" {
		return nil, ErrMissingCredentials
	}
	c := &GoogleClient{
		baseURL: DefaultAPIURL,
		creds:   creds,
		client:  &http.Client{Timeout: DefaultRequestLimit},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// buildHTTPClient returns an HTTP client with sane transport timeouts and an optional proxy
func buildHTTPClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   20 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q: expected [protocol://]host[:port]", proxyURL)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   DefaultRequestLimit,
	}, nil
}

func (c *GoogleClient) requestURL(query string, pageSize int) string {
	safe := "off"
	if c.safeSearch {
		safe = "active"
	}
	params := url.Values{}
	params.Set("key", c.creds.APIKey)
	params.Set("cx", c.creds.CSEID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(pageSize))
	params.Set("safe", safe)
	return c.baseURL + "?" + params.Encode()
}

// Search runs one query and returns the items of the first result page
func (c *GoogleClient) Search(ctx context.Context, query string, pageSize int) ([]SearchItem, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(query, pageSize), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	slog.Debug("Querying Custom Search API", "query", query, "num", pageSize)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var errResp CSEResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			apiErr.Message = errResp.Error.Message
		}
		if res.StatusCode == http.StatusTooManyRequests {
			slog.Error("Rate limit exceeded (429) from Custom Search API", "query", query)
		}
		return nil, apiErr
	}

	var resp CSEResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if resp.Error != nil {
		return nil, &APIError{StatusCode: resp.Error.Code, Message: resp.Error.Message}
	}

	slog.Debug("Received search results", "query", query, "itemCount", len(resp.Items))
	return resp.Items, nil
}

// Validate checks the credentials with a minimal one-result query
func (c *GoogleClient) Validate(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL("test", 1), nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusOK {
		return true, "Credentials valid!"
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return false, fmt.Sprintf("HTTP %d: %s", res.StatusCode, truncateRunes(string(body), validateSnippetLen))
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
