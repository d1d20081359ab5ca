package main

import "time"

// Query is a fully composed search string tagged with the category it was generated for
type Query struct {
	Text     string
	Category string
}

// ResultRecord represents a single search result collected during a run
type ResultRecord struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
	Dork        string `json:"dork"`
	Category    string `json:"category"`
}

// SearchItem is one item returned by the external search API
type SearchItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// CSEResponse represents the response structure from the Custom Search JSON API
type CSEResponse struct {
	Items []SearchItem `json:"items"`
	Error *CSEError    `json:"error"`
}

// CSEError is the error object embedded in failed Custom Search responses
type CSEError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Credentials holds the API key and search engine ID passed opaquely to the client
type Credentials struct {
	APIKey string    `json:"api_key"`
	CSEID  string    `json:"cse_id"`
	Saved  time.Time `json:"saved,omitempty"`
}

// RateLimiterState is a point-in-time copy of the limiter's counters
type RateLimiterState struct {
	RequestsPerSecond float64
	DailyQuota        int
	CurrentDay        time.Time
	CountToday        int
	LastRequest       time.Time
}

// RunRecord describes a batch run stored in the history database
type RunRecord struct {
	ID          string
	Mode        string
	Target      string
	QueryCount  int
	ResultCount int
	Status      string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// OpenGraphData represents extracted page metadata for a result URL
type OpenGraphData struct {
	URL         string
	Title       string
	Description string
	Image       string
	SiteName    string
}

// OpenGraphCache represents cached OpenGraph data in the database
type OpenGraphCache struct {
	ID           int
	URL          string
	Title        string
	Description  string
	Image        string
	SiteName     string
	FetchedAt    time.Time
	ExpiresAt    time.Time
	FetchSuccess bool
}
