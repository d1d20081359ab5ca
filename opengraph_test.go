package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseTestDocument(t *testing.T, htmlContent string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}
	return doc
}

func newTestFetcher() *OpenGraphFetcher {
	f := NewOpenGraphFetcher()
	f.domainDelay = 0
	return f
}

func TestExtractOpenGraphTags_BasicTags(t *testing.T) {
	doc := parseTestDocument(t, `
	<html>
	<head>
		<meta property="og:title" content="Test Article Title">
		<meta property="og:description" content="This is a test article description">
		<meta property="og:image" content="https://example.com/image.jpg">
		<meta property="og:site_name" content="Test Site">
	</head>
	<body></body>
	</html>`)

	ogData := extractOpenGraphTags(doc, "https://example.com/test")

	if ogData.URL != "https://example.com/test" {
		t.Errorf("Expected URL 'https://example.com/test', got '%s'", ogData.URL)
	}
	if ogData.Title != "Test Article Title" {
		t.Errorf("Expected title 'Test Article Title', got '%s'", ogData.Title)
	}
	if ogData.Description != "This is a test article description" {
		t.Errorf("Expected description 'This is a test article description', got '%s'", ogData.Description)
	}
	if ogData.Image != "https://example.com/image.jpg" {
		t.Errorf("Expected image 'https://example.com/image.jpg', got '%s'", ogData.Image)
	}
	if ogData.SiteName != "Test Site" {
		t.Errorf("Expected site name 'Test Site', got '%s'", ogData.SiteName)
	}
}

func TestExtractOpenGraphTags_Fallbacks(t *testing.T) {
	doc := parseTestDocument(t, `
	<html>
	<head>
		<title>  Admin
			Login  </title>
		<meta name="description" content="Sign in to the admin console">
	</head>
	</html>`)

	ogData := extractOpenGraphTags(doc, "https://example.com/admin")

	if ogData.Title != "Admin Login" {
		t.Errorf("Expected title 'Admin Login', got '%s'", ogData.Title)
	}
	if ogData.Description != "Sign in to the admin console" {
		t.Errorf("Expected fallback description, got '%s'", ogData.Description)
	}
}

func TestExtractOpenGraphTags_PriorityOrder(t *testing.T) {
	doc := parseTestDocument(t, `
	<html>
	<head>
		<title>HTML Title</title>
		<meta name="description" content="Meta description">
		<meta property="og:title" content="OG Title">
		<meta property="og:description" content="OG description">
		<meta property="og:title" content="Second OG Title">
	</head>
	</html>`)

	ogData := extractOpenGraphTags(doc, "https://example.com/")

	if ogData.Title != "OG Title" {
		t.Errorf("Expected first og:title to win, got '%s'", ogData.Title)
	}
	if ogData.Description != "OG description" {
		t.Errorf("Expected og:description to win, got '%s'", ogData.Description)
	}
}

func TestExtractOpenGraphTags_EmptyContent(t *testing.T) {
	doc := parseTestDocument(t, `<html><head><meta property="og:title" content="   "></head></html>`)

	ogData := extractOpenGraphTags(doc, "https://example.com/")

	if ogData.Title != "" || ogData.Description != "" || ogData.Image != "" || ogData.SiteName != "" {
		t.Errorf("Expected empty data, got %+v", ogData)
	}
}

func TestCleanOpenGraphData_ImageURL(t *testing.T) {
	testCases := []struct {
		name     string
		image    string
		expected string
	}{
		{"valid", "https://example.com/image.jpg", "https://example.com/image.jpg"},
		{"invalid scheme", "://invalid-url-scheme", ""},
		{"relative", "/static/logo.png", ""},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ogData := &OpenGraphData{URL: "https://example.com/test", Image: tc.image}
			cleanOpenGraphData(ogData)
			if ogData.Image != tc.expected {
				t.Errorf("Expected image '%s', got '%s'", tc.expected, ogData.Image)
			}
		})
	}
}

func TestFetchOpenGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><meta property="og:description" content="Exposed backup"></head></html>`))
		case "/file.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := newTestFetcher()
	ctx := context.Background()

	ogData, err := fetcher.FetchOpenGraph(ctx, server.URL+"/page")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ogData.Description != "Exposed backup" {
		t.Errorf("Expected description 'Exposed backup', got '%s'", ogData.Description)
	}

	if _, err := fetcher.FetchOpenGraph(ctx, server.URL+"/file.pdf"); err == nil {
		t.Error("Expected error for non-HTML content")
	}
	if _, err := fetcher.FetchOpenGraph(ctx, server.URL+"/missing"); err == nil {
		t.Error("Expected error for 404 response")
	}
	if _, err := fetcher.FetchOpenGraph(ctx, "ftp://example.com/file"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestGetOpenGraphWithFallback_CachesFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	db := setupTestDB(t)
	fetcher := newTestFetcher()

	for i := 0; i < 2; i++ {
		if og := getOpenGraphWithFallback(context.Background(), db, fetcher, server.URL+"/broken"); og != nil {
			t.Errorf("Expected nil data for failed fetch, got %+v", og)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected failure to be cached after one request, got %d requests", hits.Load())
	}
}

func TestEnrichResults(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Backup Index</title><meta name="description" content="Fetched description"></head></html>`))
	}))
	defer server.Close()

	results := []ResultRecord{
		{Title: "Has snippet", URL: server.URL + "/a", Description: "Original"},
		{Title: "", URL: server.URL + "/b", Description: ""},
	}

	enriched, err := enrichResults(context.Background(), setupTestDB(t), newTestFetcher(), results)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if enriched[0].Description != "Original" {
		t.Errorf("Expected existing description kept, got '%s'", enriched[0].Description)
	}
	if enriched[1].Description != "Fetched description" {
		t.Errorf("Expected fetched description, got '%s'", enriched[1].Description)
	}
	if enriched[1].Title != "Backup Index" {
		t.Errorf("Expected fetched title, got '%s'", enriched[1].Title)
	}
	if results[1].Description != "" {
		t.Error("Expected input slice to be left untouched")
	}
	if hits.Load() != 1 {
		t.Errorf("Expected only the result without a snippet to be fetched, got %d requests", hits.Load())
	}
}

func TestEnrichResults_NoDatabase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><meta property="og:description" content="From page"></head></html>`))
	}))
	defer server.Close()

	enriched, err := enrichResults(context.Background(), nil, newTestFetcher(), []ResultRecord{{URL: server.URL}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if enriched[0].Description != "From page" {
		t.Errorf("Expected 'From page', got '%s'", enriched[0].Description)
	}
}
