package main

import (
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/feeds"
)

// generateResultFeed creates an Atom feed from a result set
func generateResultFeed(title string, results []ResultRecord, now time.Time) (string, error) {
	slog.Debug("Generating result feed", "itemCount", len(results))

	feed := &feeds.Feed{
		Title:       title,
		Description: fmt.Sprintf("%d search results", len(results)),
		Link:        &feeds.Link{Href: "https://www.google.com/", Rel: "self", Type: "text/html"},
		Id:          fmt.Sprintf("tag:%s,%d:%s", appName, now.Year(), now.UTC().Format("20060102T150405Z")),
		Created:     now,
		Updated:     now,
	}

	for _, r := range results {
		created, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			slog.Warn("Failed to parse timestamp, using feed time", "error", err, "timestamp", r.Timestamp)
			created = now
		}

		tags := ""
		if categories := categorizeResult(r); len(categories) > 0 {
			var sb strings.Builder
			sb.WriteString(`<div style="margin-bottom: 8px;">`)
			for _, cat := range categories {
				fmt.Fprintf(&sb, `<span style="display: inline-block; background: #e5e5e5; color: #666; padding: 2px 6px; border-radius: 12px; font-size: 12px; margin-right: 4px;">%s</span>`, html.EscapeString(cat))
			}
			sb.WriteString("</div>")
			tags = sb.String()
		}

		description := fmt.Sprintf(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.5;">
			%s
			<p>%s</p>
			<div style="margin-bottom: 8px;">
				<strong>Dork:</strong> <code style="background: #f4f4f4; padding: 2px 4px; border-radius: 3px;">%s</code>
			</div>
		</div>`,
			tags,
			html.EscapeString(r.Description),
			html.EscapeString(r.Dork))

		feed.Items = append(feed.Items, &feeds.Item{
			Title:       r.Title,
			Link:        &feeds.Link{Href: r.URL, Rel: "alternate", Type: "text/html"},
			Id:          r.URL + "#" + r.Dork,
			Description: description,
			Created:     created,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return "", fmt.Errorf("failed to generate feed: %w", err)
	}

	slog.Debug("Feed generated successfully", "feedSize", len(atom))
	return atom, nil
}
