// Package htmlclean shrinks pasted or captured listing pages before they are sent to the AI service.
package htmlclean

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseTags never carry product data
const noiseTags = "script, style, svg, noscript, iframe, link, meta, template, canvas, video, audio, object, embed"

// denylist removes navigation and recommendation blocks that list products from other pages
const denylist = "header, footer, nav, aside, " +
	"[class*='recommend'], [id*='recommend'], " +
	"[class*='related'], [id*='related'], " +
	"[class*='breadcrumb'], [id*='breadcrumb'], " +
	"[class*='cookie'], [class*='popup'], [class*='modal']"

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	betweenTagRe = regexp.MustCompile(`>\s+<`)
)

// keptAttrs are the only attributes that survive cleaning
var keptAttrs = map[string]bool{"href": true, "src": true}

// Clean strips scripts, styles, comments, denylisted containers, every attribute
// except href/src and inline base64 data, then collapses whitespace.
func Clean(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find(noiseTags).Remove()
	doc.Find(denylist).Remove()
	for _, n := range doc.Nodes {
		removeComments(n)
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			if !keptAttrs[attr.Key] || isInlineData(attr.Val) {
				continue
			}
			kept = append(kept, attr)
		}
		node.Attr = kept
	})

	body := doc.Find("body")
	var out string
	if body.Length() > 0 {
		out, err = body.Html()
	} else {
		out, err = doc.Html()
	}
	if err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}

	out = whitespaceRe.ReplaceAllString(out, " ")
	out = betweenTagRe.ReplaceAllString(out, "><")
	return strings.TrimSpace(out), nil
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

func isInlineData(val string) bool {
	v := strings.TrimSpace(strings.ToLower(val))
	return strings.HasPrefix(v, "data:") || strings.Contains(v, ";base64,")
}

// Truncate cuts s to at most maxChars characters, preferring to end on a tag boundary
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	runes := []rune(s)
	truncated := string(runes[:maxChars])
	lastClose := strings.LastIndex(truncated, ">")
	if lastClose > len(truncated)/2 {
		return truncated[:lastClose+1]
	}
	return truncated
}

// ResolveURL resolves a possibly relative product link against the page it was found on.
// An empty link resolves to the page itself; unparsable links are returned unchanged.
func ResolveURL(pageURL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return pageURL
	}

	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	if ref.IsAbs() {
		return ref.String()
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return link
	}
	return base.ResolveReference(ref).String()
}
