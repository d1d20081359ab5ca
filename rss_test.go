package main

import (
	"strings"
	"testing"
	"time"
)

var feedTime = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func TestGenerateResultFeed_Empty(t *testing.T) {
	atom, err := generateResultFeed("Dork results: example.com", []ResultRecord{}, feedTime)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(atom, "Dork results: example.com") {
		t.Error("Feed should contain the title")
	}
	if !strings.Contains(atom, `xmlns="http://www.w3.org/2005/Atom"`) {
		t.Error("Feed should be Atom format")
	}
	if !strings.Contains(atom, "tag:dork-runner,2024:20240102T150405Z") {
		t.Error("Feed should carry a tag URI id derived from the generation time")
	}
	if strings.Contains(atom, "<entry>") {
		t.Error("Empty results should not generate any entries")
	}
}

func TestGenerateResultFeed_Entries(t *testing.T) {
	results := []ResultRecord{
		{
			Title:       "Index of /backup",
			URL:         "https://example.com/backup/db.sql",
			Description: "Parent Directory <dump>",
			Timestamp:   "2024-01-01T12:00:00Z",
			Dork:        `intitle:"index of" example.com`,
			Category:    "Directory Listings",
		},
		{
			Title:     "Login",
			URL:       "https://example.com/login",
			Timestamp: "2024-01-01T12:00:01Z",
			Dork:      "site:example.com inurl:login",
			Category:  "Login Pages",
		},
	}

	atom, err := generateResultFeed("Dork results", results, feedTime)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := strings.Count(atom, "<entry>"); got != 2 {
		t.Errorf("Expected 2 entries, got %d", got)
	}
	for _, want := range []string{
		"Index of /backup",
		"https://example.com/backup/db.sql",
		"https://example.com/login#site:example.com inurl:login",
		"2024-01-01T12:00:00Z",
		"Directory Listings",
		"Database",
	} {
		if !strings.Contains(atom, want) {
			t.Errorf("Feed should contain '%s'", want)
		}
	}
	if strings.Contains(atom, "<dump>") {
		t.Error("Result description should be HTML-escaped")
	}
}

func TestGenerateResultFeed_BadTimestamp(t *testing.T) {
	results := []ResultRecord{{Title: "T", URL: "https://example.com/", Timestamp: "not a time", Dork: "q"}}

	atom, err := generateResultFeed("Dork results", results, feedTime)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(atom, "2024-01-02T15:04:05Z") {
		t.Error("Entry with an unparseable timestamp should fall back to the feed time")
	}
}
