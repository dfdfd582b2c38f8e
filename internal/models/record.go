// Package models defines data structures shared by the pipeline steps.
package models

import (
	"net/url"
	"path"
	"strings"
)

// URLItem is one collected item link and the label of the repository it came from.
type URLItem struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// FileName returns the last path segment of the item URL,
// e.g. gmb-2025-12345.xml for .../gmb-2025-12345/1/xml/gmb-2025-12345.xml.
func (u URLItem) FileName() string {
	p := u.URL
	if parsed, err := url.Parse(u.URL); err == nil {
		p = parsed.Path
	}

	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}

	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}

	return base
}

// Record is one scraped announcement as written to the JSONL shards.
type Record struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// IsEmpty reports whether the record carries no text.
func (r Record) IsEmpty() bool {
	return strings.TrimSpace(r.Content) == ""
}
