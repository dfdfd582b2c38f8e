// Package sru queries the KOOP search/retrieve endpoint and turns its
// gzd records into announcements.
package sru

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"bekendmakingen/internal/normalizer"
)

// Response errors.
var (
	ErrMalformedResponse = errors.New("malformed sru response")
	ErrDiagnostic        = errors.New("sru diagnostic")
)

// urlFields are tried in order to find the public URL of a record.
var urlFields = []string{"preferredUrl", "url", "locationURI", "itemUrl", "identifier"}

// metaSkipFields are left out of the meta text of a record.
var metaSkipFields = map[string]bool{
	"identifier":  true,
	"locationURI": true,
}

// Record is one SRU record.
type Record struct {
	ItemURLs   map[string]string
	Identifier string
	Title      string
	URL        string
	Content    string
	itemOrder  []string
}

// PreferredItemURL returns the item URL of the given manifestation,
// falling back to the first item URL of the record.
func (r Record) PreferredItemURL(manifestation string) string {
	if u, ok := r.ItemURLs[manifestation]; ok {
		return u
	}

	if len(r.itemOrder) > 0 {
		return r.ItemURLs[r.itemOrder[0]]
	}

	return ""
}

// Response is one searchRetrieve page.
type Response struct {
	Records            []Record
	NumberOfRecords    int
	NextRecordPosition int
}

// Diagnostic is an SRU diagnostic reported by the server.
type Diagnostic struct {
	URI     string
	Details string
	Message string
}

// ParseResponse decodes a searchRetrieve response body.
func ParseResponse(body []byte) (*Response, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	root := xmlquery.FindOne(doc, "/*")
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedResponse)
	}

	if diags := parseDiagnostics(doc); len(diags) > 0 {
		d := diags[0]

		return nil, fmt.Errorf("%w: %s (%s) %s", ErrDiagnostic, d.Message, d.Details, d.URI)
	}

	if root.Data != "searchRetrieveResponse" {
		return nil, fmt.Errorf("%w: unexpected root element %q", ErrMalformedResponse, root.Data)
	}

	resp := &Response{
		NumberOfRecords:    intOf(doc, "//*[local-name()='numberOfRecords']"),
		NextRecordPosition: intOf(doc, "//*[local-name()='nextRecordPosition']"),
	}

	for _, data := range xmlquery.Find(doc, "//*[local-name()='recordData']") {
		resp.Records = append(resp.Records, parseRecord(data))
	}

	return resp, nil
}

func parseDiagnostics(doc *xmlquery.Node) []Diagnostic {
	var diags []Diagnostic

	for _, n := range xmlquery.Find(doc, "//*[local-name()='diagnostics']/*[local-name()='diagnostic']") {
		diags = append(diags, Diagnostic{
			URI:     textOf(n, "./*[local-name()='uri']"),
			Details: textOf(n, "./*[local-name()='details']"),
			Message: textOf(n, "./*[local-name()='message']"),
		})
	}

	return diags
}

func parseRecord(data *xmlquery.Node) Record {
	rec := Record{
		ItemURLs:   make(map[string]string),
		Identifier: textOf(data, ".//*[local-name()='identifier']"),
		Title:      textOf(data, ".//*[local-name()='title']"),
	}

	for _, field := range urlFields {
		if u := textOf(data, ".//*[local-name()='"+field+"']"); u != "" {
			rec.URL = u

			break
		}
	}

	for _, item := range xmlquery.Find(data, ".//*[local-name()='itemUrl']") {
		u := strings.TrimSpace(item.InnerText())
		if u == "" {
			continue
		}

		m := item.SelectAttr("manifestation")
		if _, ok := rec.ItemURLs[m]; ok {
			continue
		}

		rec.ItemURLs[m] = u
		rec.itemOrder = append(rec.itemOrder, m)
	}

	rec.Content = recordContent(data)

	return rec
}

// recordContent joins the meta text (without identifiers and locations)
// and the body text of a record, falling back to all of its text.
func recordContent(data *xmlquery.Node) string {
	var parts []string

	if meta := xmlquery.FindOne(data, ".//*[local-name()='meta']"); meta != nil {
		collectMeta(meta, &parts)
	}

	if body := xmlquery.FindOne(data, ".//*[local-name()='body']"); body != nil {
		if text := normalizer.NormalizeSpace(body.InnerText()); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return normalizer.NormalizeSpace(data.InnerText())
	}

	return strings.Join(parts, " ")
}

func collectMeta(n *xmlquery.Node, parts *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			if metaSkipFields[c.Data] {
				continue
			}

			collectMeta(c, parts)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if text := normalizer.NormalizeSpace(c.Data); text != "" {
				*parts = append(*parts, text)
			}
		}
	}
}

func textOf(n *xmlquery.Node, expr string) string {
	found := xmlquery.FindOne(n, expr)
	if found == nil {
		return ""
	}

	return strings.TrimSpace(found.InnerText())
}

func intOf(n *xmlquery.Node, expr string) int {
	v, err := strconv.Atoi(textOf(n, expr))
	if err != nil {
		return 0
	}

	return v
}
