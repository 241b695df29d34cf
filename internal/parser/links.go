package parser

import (
	"sort"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/itemreviewed/internal/domain"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

const (
	anyHrefXPath       = `//*[@href]`
	paragraphHrefXPath = `//body//p//*[@href]`
)

// LocateLink finds the first element whose href points at targetURL and describes
// where it sits in the page. Both hrefs and targetURL are resolved against factcheckURL
// and canonicalized before comparing. ItemReviewed holds the resolved target. It
// returns nil when no element matches.
func LocateLink(root *html.Node, targetURL, factcheckURL string) *types.LinkContext {
	anchor := FindAnchor(root, targetURL, factcheckURL)
	if anchor == nil {
		return nil
	}

	resolved, ok := domain.Resolve(factcheckURL, targetURL)
	if !ok {
		resolved = targetURL
	}

	return &types.LinkContext{
		ItemReviewed:        resolved,
		OtherAttributes:     otherAttributes(anchor),
		LinkRank:            LinkRank(root, targetURL, factcheckURL),
		NumberOfAncestors:   CountAncestors(anchor),
		NumberOfDescendants: CountDescendants(anchor),
		IsInternalLink:      domain.SameSite(resolved, factcheckURL),
		LinkText:            ExtractLinkText(anchor),
	}
}

// FindAnchor returns the first element in document order with a matching href.
func FindAnchor(root *html.Node, targetURL, factcheckURL string) *html.Node {
	if root == nil {
		return nil
	}
	for _, n := range htmlquery.Find(root, anyHrefXPath) {
		if domain.SameURL(factcheckURL, htmlquery.SelectAttr(n, "href"), targetURL) {
			return n
		}
	}
	return nil
}

// LinkRank is the 0-based position of targetURL among the http(s) links found inside
// paragraphs of the body, in document order. It is nil when the URL is not among them.
func LinkRank(root *html.Node, targetURL, factcheckURL string) *int {
	if root == nil {
		return nil
	}
	target, ok := domain.Resolve(factcheckURL, targetURL)
	if !ok {
		return nil
	}
	target = domain.CanonicalizeURL(target)

	rank := 0
	for _, n := range htmlquery.Find(root, paragraphHrefXPath) {
		href, ok := domain.Resolve(factcheckURL, htmlquery.SelectAttr(n, "href"))
		if !ok || !domain.IsHTTPURL(href) {
			continue
		}
		if domain.CanonicalizeURL(href) == target {
			return &rank
		}
		rank++
	}
	return nil
}

// CountAncestors counts the element nodes above n, up to and including <html>.
func CountAncestors(n *html.Node) int {
	count := 0
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			count++
		}
	}
	return count
}

// CountDescendants counts the element nodes below n.
func CountDescendants(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
		count += CountDescendants(c)
	}
	return count
}

// ExtractLinkText collects the parent's leading text, the anchor's leading text and
// the text right after the anchor. It returns nil when all three are blank.
func ExtractLinkText(anchor *html.Node) *types.LinkText {
	if anchor == nil {
		return nil
	}
	lt := &types.LinkText{
		LinkText: leadingText(anchor),
	}
	if anchor.Parent != nil && anchor.Parent.Type == html.ElementNode {
		lt.ParentText = leadingText(anchor.Parent)
	}
	if next := anchor.NextSibling; next != nil && next.Type == html.TextNode {
		lt.TailText = next.Data
	}

	lt.CombinedText = lt.ParentText + lt.LinkText + lt.TailText
	if strings.TrimSpace(lt.CombinedText) == "" {
		return nil
	}
	return lt
}

// leadingText is the text before n's first child node.
func leadingText(n *html.Node) string {
	if c := n.FirstChild; c != nil && c.Type == html.TextNode {
		return c.Data
	}
	return ""
}

func otherAttributes(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Key == "href" {
			continue
		}
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		attrs[key] = a.Val
	}
	return attrs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
