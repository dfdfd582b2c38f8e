package normalizer

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"
)

// boilerplateSelectors are removed from HTML documents before text extraction.
const boilerplateSelectors = "script, style, noscript, template, head, header, footer, nav, aside, form, iframe"

// xmlSkipElements are XML subtrees that carry no publication text.
var xmlSkipElements = map[string]bool{
	"meta":   true,
	"head":   true,
	"script": true,
	"style":  true,
}

// ExtractText returns the plain text of an XML or HTML document.
// XML is tried first; documents that do not parse as XML, have an html root,
// or yield no text are parsed as HTML. Text nodes are whitespace-normalized
// and joined with a single space.
func ExtractText(raw []byte) string {
	if text, ok := extractXML(raw); ok && text != "" {
		return text
	}

	return extractHTML(raw)
}

func extractXML(raw []byte) (string, bool) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}

	root := xmlquery.FindOne(doc, "/*")
	if root == nil || strings.EqualFold(root.Data, "html") {
		return "", false
	}

	var parts []string

	collectXMLText(root, &parts)

	return strings.Join(parts, " "), true
}

func collectXMLText(n *xmlquery.Node, parts *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			if xmlSkipElements[strings.ToLower(c.Data)] {
				continue
			}

			collectXMLText(c, parts)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if text := NormalizeSpace(c.Data); text != "" {
				*parts = append(*parts, text)
			}
		}
	}
}

func extractHTML(raw []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	doc.Find(boilerplateSelectors).Remove()

	var parts []string

	for _, n := range doc.Nodes {
		collectHTMLText(n, &parts)
	}

	return strings.Join(parts, " ")
}

func collectHTMLText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if text := NormalizeSpace(n.Data); text != "" {
			*parts = append(*parts, text)
		}

		return
	case html.CommentNode, html.DoctypeNode:
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHTMLText(c, parts)
	}
}

// NormalizeSpace collapses runs of whitespace into single spaces and trims the ends.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
