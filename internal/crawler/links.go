package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FindLinks returns the unique absolute links of an HTML listing page that stay
// within the allowed domains, sorted in descending order so newer years and
// identifiers come first.
func FindLinks(body []byte, base *url.URL, allowed []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)

		// query-only and parent references point back up the tree
		if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "../") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}

		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		if !IsAllowedDomain(abs.Hostname(), allowed) {
			return
		}

		abs.Fragment = ""
		seen[abs.String()] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(links)))

	return links, nil
}

// IsAllowedDomain reports whether host equals an allowed domain or is a subdomain of one.
func IsAllowedDomain(host string, allowed []string) bool {
	host = strings.ToLower(host)

	for _, dom := range allowed {
		dom = strings.ToLower(dom)
		if host == dom || strings.HasSuffix(host, "."+dom) {
			return true
		}
	}

	return false
}

// IsItemLink reports whether link points at a downloadable publication
// rather than a listing or a metadata file.
func IsItemLink(link string) bool {
	path := link
	if u, err := url.Parse(link); err == nil {
		path = u.Path
	}

	if !strings.HasSuffix(path, ".xml") && !strings.HasSuffix(path, ".html") {
		return false
	}

	return !strings.Contains(link, "metadata")
}
