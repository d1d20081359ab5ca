package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// OpenGraph fetcher with rate limiting and domain-based delays
type OpenGraphFetcher struct {
	client      *http.Client
	domainMutex sync.Mutex
	lastFetch   map[string]time.Time
	domainDelay time.Duration
	semaphore   chan struct{}
	urlMutexes  sync.Map // URL -> *sync.Mutex for preventing concurrent fetches of same URL
}

// NewOpenGraphFetcher creates a new OpenGraph fetcher with rate limiting
func NewOpenGraphFetcher() *OpenGraphFetcher {
	return &OpenGraphFetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		lastFetch:   make(map[string]time.Time),
		domainDelay: time.Second,
		semaphore:   make(chan struct{}, 5), // Max 5 concurrent fetches
	}
}

// FetchOpenGraph fetches OpenGraph data from a URL with rate limiting
func (f *OpenGraphFetcher) FetchOpenGraph(ctx context.Context, targetURL string) (*OpenGraphData, error) {
	urlMutexInterface, _ := f.urlMutexes.LoadOrStore(targetURL, &sync.Mutex{})
	urlMutex := urlMutexInterface.(*sync.Mutex)
	urlMutex.Lock()
	defer urlMutex.Unlock()

	select {
	case f.semaphore <- struct{}{}:
		defer func() { <-f.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", parsedURL.Scheme)
	}
	if err := f.waitForDomain(ctx, parsedURL.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	slog.Debug("Fetching OpenGraph data", "url", targetURL)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("not an HTML page: %s", contentType)
	}

	// Limit response body size to 1MB
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	ogData := extractOpenGraphTags(doc, targetURL)
	slog.Debug("Extracted OpenGraph data", "url", targetURL, "title", ogData.Title, "hasDescription", ogData.Description != "")
	return ogData, nil
}

// waitForDomain spaces requests to the same host by domainDelay
func (f *OpenGraphFetcher) waitForDomain(ctx context.Context, domain string) error {
	f.domainMutex.Lock()
	if last, exists := f.lastFetch[domain]; exists {
		if since := time.Since(last); since < f.domainDelay {
			sleepTime := f.domainDelay - since
			f.domainMutex.Unlock()
			slog.Debug("Rate limiting domain", "domain", domain, "sleep", sleepTime)
			if err := sleepContext(ctx, sleepTime); err != nil {
				return err
			}
			f.domainMutex.Lock()
		}
	}
	f.lastFetch[domain] = time.Now()
	f.domainMutex.Unlock()
	return nil
}

// extractOpenGraphTags reads og:* properties with <title> and meta description fallbacks
func extractOpenGraphTags(doc *goquery.Document, pageURL string) *OpenGraphData {
	ogData := &OpenGraphData{URL: pageURL}

	meta := func(selector string) string {
		v, _ := doc.Find(selector).First().Attr("content")
		return strings.TrimSpace(v)
	}

	ogData.Title = meta(`meta[property="og:title"]`)
	ogData.Description = meta(`meta[property="og:description"]`)
	ogData.Image = meta(`meta[property="og:image"]`)
	ogData.SiteName = meta(`meta[property="og:site_name"]`)

	if ogData.Title == "" {
		ogData.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if ogData.Description == "" {
		ogData.Description = meta(`meta[name="description"]`)
	}

	cleanOpenGraphData(ogData)
	return ogData
}

// cleanOpenGraphData cleans and validates OpenGraph data
func cleanOpenGraphData(ogData *OpenGraphData) {
	ogData.Title = strings.Join(strings.Fields(ogData.Title), " ")
	ogData.Description = strings.Join(strings.Fields(ogData.Description), " ")
	ogData.SiteName = strings.TrimSpace(ogData.SiteName)

	if ogData.Image != "" {
		if u, err := url.Parse(ogData.Image); err != nil || u.Scheme == "" {
			ogData.Image = ""
		}
	}
}

// getOpenGraphWithFallback fetches OpenGraph data with caching. A nil db disables caching.
func getOpenGraphWithFallback(ctx context.Context, db *sql.DB, fetcher *OpenGraphFetcher, pageURL string) *OpenGraphData {
	if db != nil {
		cached, err := getOpenGraphData(db, pageURL)
		if err != nil {
			slog.Warn("Error getting cached OpenGraph data", "error", err, "url", pageURL)
		}
		if cached != nil {
			if !cached.FetchSuccess {
				slog.Debug("Skipping OpenGraph fetch due to recent failure", "url", pageURL)
				return nil
			}
			return &OpenGraphData{
				URL:         cached.URL,
				Title:       cached.Title,
				Description: cached.Description,
				Image:       cached.Image,
				SiteName:    cached.SiteName,
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ogData, err := fetcher.FetchOpenGraph(ctx, pageURL)
	fetchSuccess := err == nil && ogData != nil
	if err != nil {
		slog.Debug("Failed to fetch OpenGraph data", "error", err, "url", pageURL)
		ogData = &OpenGraphData{URL: pageURL}
	}

	// Cache failures too so they are not retried on every run
	if db != nil && ctx.Err() == nil {
		if err := cacheOpenGraphData(db, ogData, fetchSuccess); err != nil {
			slog.Warn("Failed to cache OpenGraph data", "error", err, "url", pageURL)
		}
	}

	if fetchSuccess {
		return ogData
	}
	return nil
}

// enrichResults fills empty descriptions from page metadata. The input slice is not modified.
func enrichResults(ctx context.Context, db *sql.DB, fetcher *OpenGraphFetcher, results []ResultRecord) ([]ResultRecord, error) {
	enriched := make([]ResultRecord, len(results))
	copy(enriched, results)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cap(fetcher.semaphore))

	filled := 0
	var mu sync.Mutex
	for i := range enriched {
		if enriched[i].Description != "" || enriched[i].URL == "" {
			continue
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			og := getOpenGraphWithFallback(ctx, db, fetcher, enriched[i].URL)
			if og == nil || og.Description == "" {
				return nil
			}
			enriched[i].Description = og.Description
			if enriched[i].Title == "" {
				enriched[i].Title = og.Title
			}
			mu.Lock()
			filled++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	slog.Debug("Enriched results", "filled", filled, "total", len(results))
	return enriched, nil
}
