package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ManualCategory tags queries entered by hand rather than generated from the table
const ManualCategory = "Manual"

// Operators lists the search operators offered by the manual dork builder
var Operators = []string{
	"site:", "inurl:", "intext:", "filetype:", "intitle:", "link:", "cache:", "info:",
	"related:", "before:", "after:", "allintext:", "allinurl:", "allintitle:", "ext:",
	"OR", "AND", "-",
}

// DorkTemplate is a canned manual query
type DorkTemplate struct {
	Label string
	Query string
}

// Templates is the built-in manual query library
var Templates = []DorkTemplate{
	{Label: "Find exposed documents", Query: "filetype:pdf | filetype:doc | filetype:xlsx site:example.com"},
	{Label: "Find login pages", Query: "inurl:login | inurl:signin | intitle:Login"},
	{Label: "Find vulnerable pages", Query: "inurl:php?id= | inurl:index.php?id="},
	{Label: "Find exposed directories", Query: `intitle:"Index of" | intitle:"Directory Listing"`},
	{Label: "Find config files", Query: "filetype:xml | filetype:conf | filetype:cnf | filetype:reg"},
	{Label: "Find database files", Query: "filetype:sql | filetype:db | filetype:dbf"},
	{Label: "Find backup files", Query: "filetype:bak | filetype:backup | filetype:old"},
	{Label: "Find exposed credentials", Query: "intext:username filetype:log | intext:password filetype:log"},
	{Label: "Find Jenkins instances", Query: `intitle:"Dashboard [Jenkins]"`},
}

// GenerateQueries expands a target into one query per enabled category, in table order
func GenerateQueries(target string, enabled map[string]bool) ([]Query, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: target is empty", ErrInvalidInput)
	}
	if !anyEnabled(enabled) {
		return nil, ErrNoCategoriesSelected
	}

	var queries []Query
	for _, c := range categoryTable {
		if !enabled[c.ID] {
			continue
		}
		queries = append(queries, Query{
			Text:     strings.ReplaceAll(c.Template, targetPlaceholder, target),
			Category: c.Label,
		})
	}

	// Only unknown ids were enabled
	if len(queries) == 0 {
		return nil, ErrNoCategoriesSelected
	}

	slog.Debug("Generated dorks", "target", target, "count", len(queries))
	return queries, nil
}

func anyEnabled(enabled map[string]bool) bool {
	for _, on := range enabled {
		if on {
			return true
		}
	}
	return false
}

// ManualQuery wraps a hand-written query as a single-element batch, optionally restricted to a site
func ManualQuery(text, site string) ([]Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	if domain := normalizeSite(site); domain != "" {
		text = fmt.Sprintf("site:%s %s", domain, text)
	}
	return []Query{{Text: text, Category: ManualCategory}}, nil
}

// normalizeSite strips the scheme and trailing slashes from a site restriction
func normalizeSite(site string) string {
	site = strings.TrimSpace(site)
	site = strings.TrimPrefix(site, "http://")
	site = strings.TrimPrefix(site, "https://")
	return strings.Trim(site, "/")
}

// AppendOperator adds an operator/value pair to the end of a manual query
func AppendOperator(query, op, value string) string {
	value = strings.TrimSpace(value)
	if op == "" || value == "" {
		return query
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s%s", strings.TrimSpace(query), op, value))
}

// TemplateQuery returns the query of the i-th built-in template
func TemplateQuery(i int) (string, error) {
	if i < 0 || i >= len(Templates) {
		return "", fmt.Errorf("%w: template index %d out of range [0,%d)", ErrInvalidInput, i, len(Templates))
	}
	return Templates[i].Query, nil
}

// ParseCategoryList builds an enabled set from a comma separated id list; "all" enables every category
func ParseCategoryList(list string) (map[string]bool, error) {
	enabled := make(map[string]bool)
	list = strings.TrimSpace(list)
	if list == "" {
		return enabled, nil
	}
	if strings.EqualFold(list, "all") {
		for _, c := range categoryTable {
			enabled[c.ID] = true
		}
		return enabled, nil
	}

	var unknown []string
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := lookupCategory(id); !ok {
			unknown = append(unknown, id)
			continue
		}
		enabled[id] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown categories: %s", ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return enabled, nil
}
