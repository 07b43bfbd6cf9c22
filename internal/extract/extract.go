// Package extract turns fetched HTML into listing links and document
// metadata. It is pure: no network access and no panics on bad markup.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mnbossa/agridocs/internal/docs"
)

// Anchors are considered document links when the href contains one of
// these path segments or ends with one of these suffixes.
var (
	linkSegments = []string{"/documents/", "/doceo/"}
	linkSuffixes = []string{".pdf"}
)

// DefaultKeywords classify a document page when one of them appears in a
// text node. Kept configurable so the heuristic can evolve without code
// changes.
var DefaultKeywords = []string{"Opinion", "Report", "Amendment"}

// ParseListing scans the listing page for document links, resolves them
// against base and returns them deduplicated in first-seen order. Anchors
// without visible text are dropped. Malformed input yields an empty slice.
func ParseListing(page []byte, base string) []docs.Link {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	origin := baseOrigin(base)
	seen := make(map[string]struct{})
	var links []docs.Link

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		title := strings.TrimSpace(a.Text())
		if title == "" {
			return
		}
		if !isDocumentHref(href) {
			return
		}
		resolved := resolveHref(href, base, origin)
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, docs.Link{Title: title, URL: resolved})
	})

	return links
}

// ExtractDetail pulls title, date, excerpt and document type out of a
// detail page. Every missing element yields an empty string.
func ExtractDetail(page []byte, keywords []string) docs.Detail {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return docs.Detail{}
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}

	return docs.Detail{
		Title:   firstText(doc, "h1, h2, .ep_title, .documentTitle"),
		Date:    firstText(doc, ".date, .ep_date, time"),
		Excerpt: firstText(doc, "p, .summary, .ep_summary"),
		DocType: findKeywordText(doc, keywords),
	}
}

func firstText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// findKeywordText returns the trimmed content of the first text node that
// mentions one of the classification keywords.
func findKeywordText(doc *goquery.Document, keywords []string) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode {
			for _, kw := range keywords {
				if strings.Contains(n.Data, kw) {
					found = strings.TrimSpace(n.Data)
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, root := range doc.Nodes {
		if walk(root) {
			break
		}
	}
	return found
}

func isDocumentHref(href string) bool {
	for _, seg := range linkSegments {
		if strings.Contains(href, seg) {
			return true
		}
	}
	for _, suffix := range linkSuffixes {
		if strings.HasSuffix(href, suffix) {
			return true
		}
	}
	return false
}

// resolveHref normalizes an anchor href to an absolute URL. Scheme-relative
// hrefs pass through untouched; absolute paths attach to the base origin;
// anything else joins onto the listing URL.
func resolveHref(href, base, origin string) string {
	switch {
	case strings.HasPrefix(href, "//"):
		return href
	case strings.HasPrefix(href, "/"):
		return origin + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return strings.TrimRight(base, "/") + "/" + href
	}
}

func baseOrigin(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(base, "/")
	}
	return u.Scheme + "://" + u.Host
}
