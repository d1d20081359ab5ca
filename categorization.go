package main

import (
	"net/url"
	"path"
	"strings"
)

var fileTypeLabels = map[string]string{
	".pdf":    "PDF",
	".doc":    "Document",
	".docx":   "Document",
	".odt":    "Document",
	".xls":    "Spreadsheet",
	".xlsx":   "Spreadsheet",
	".csv":    "Spreadsheet",
	".ppt":    "Presentation",
	".pptx":   "Presentation",
	".png":    "Image",
	".jpg":    "Image",
	".jpeg":   "Image",
	".gif":    "Image",
	".zip":    "Archive",
	".tar":    "Archive",
	".gz":     "Archive",
	".xml":    "Config",
	".conf":   "Config",
	".cnf":    "Config",
	".reg":    "Config",
	".sql":    "Database",
	".db":     "Database",
	".dbf":    "Database",
	".bak":    "Backup",
	".backup": "Backup",
	".old":    "Backup",
	".log":    "Log",
}

// resultDomain returns the lower-cased host of a result URL
func resultDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// categorizeResult returns feed tags for a result: domain, dork category, file type and page kind
func categorizeResult(r ResultRecord) []string {
	var categories []string

	domain := resultDomain(r.URL)
	if domain != "" {
		categories = append(categories, domain)
	}
	if r.Category != "" {
		categories = append(categories, r.Category)
	}

	if u, err := url.Parse(r.URL); err == nil {
		if label, ok := fileTypeLabels[strings.ToLower(path.Ext(u.Path))]; ok {
			categories = append(categories, label)
		}
	}

	titleLower := strings.ToLower(r.Title)
	urlLower := strings.ToLower(r.URL)
	switch {
	case strings.HasPrefix(titleLower, "index of"):
		categories = append(categories, "Directory Listing")
	case strings.Contains(urlLower, "login") || strings.Contains(urlLower, "signin"):
		categories = append(categories, "Login Page")
	case strings.Contains(urlLower, "?id="):
		categories = append(categories, "Parameterized URL")
	}

	return categories
}
