package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/itemreviewed/internal/domain"
)

// ClaimReviewMarker is the key whose presence makes a JSON-LD block a claim review candidate.
const ClaimReviewMarker = "itemReviewed"

const claimReviewScriptXPath = `//script[@type="application/ld+json" and contains(text(), "` + ClaimReviewMarker + `")]`

// HasClaimReview reports whether the page embeds a JSON-LD script mentioning itemReviewed.
// It is a cheap pre-filter: the script may still fail to parse.
func HasClaimReview(root *html.Node) bool {
	if root == nil {
		return false
	}
	n, err := htmlquery.Query(root, claimReviewScriptXPath)
	return err == nil && n != nil
}

// ClaimReviewExtractor pulls ClaimReview objects out of JSON-LD scripts.
type ClaimReviewExtractor struct {
	logger *slog.Logger
}

// NewClaimReviewExtractor creates a new extractor.
func NewClaimReviewExtractor(logger *slog.Logger) *ClaimReviewExtractor {
	return &ClaimReviewExtractor{
		logger: logger.With("component", "claimreview_extractor"),
	}
}

// Extract returns the first claim review block on the page.
// When a page carries several, only the first in document order is used.
func (e *ClaimReviewExtractor) Extract(doc *goquery.Document, baseURL string) (map[string]any, bool) {
	blocks := e.collect(doc, baseURL, 1)
	if len(blocks) == 0 {
		return nil, false
	}
	return blocks[0], true
}

// ExtractAll returns every claim review block on the page in document order.
func (e *ClaimReviewExtractor) ExtractAll(doc *goquery.Document, baseURL string) []map[string]any {
	return e.collect(doc, baseURL, 0)
}

// collect walks the JSON-LD scripts and stops after limit candidates (0 = no limit).
func (e *ClaimReviewExtractor) collect(doc *goquery.Document, baseURL string, limit int) []map[string]any {
	if doc == nil {
		return nil
	}

	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		raw := cleanJSONLD(sel.Text())
		if raw == "" {
			return true
		}

		values, err := decodeJSONLD(raw)
		if err != nil {
			e.logger.Debug("skipping malformed json-ld block", "url", baseURL, "index", i, "error", err)
		}
		for _, v := range values {
			for _, obj := range claimReviewObjects(v) {
				resolveTopLevelURLs(obj, baseURL)
				out = append(out, obj)
				if limit > 0 && len(out) >= limit {
					return false
				}
			}
		}
		return true
	})
	return out
}

// cleanJSONLD strips comment and CDATA wrappers some CMSs put around JSON-LD.
func cleanJSONLD(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, wrapper := range [][2]string{{"<!--", "-->"}, {"//<![CDATA[", "//]]>"}, {"<![CDATA[", "]]>"}} {
		if strings.HasPrefix(raw, wrapper[0]) && strings.HasSuffix(raw, wrapper[1]) {
			raw = strings.TrimSpace(raw[len(wrapper[0]) : len(raw)-len(wrapper[1])])
		}
	}
	return raw
}

// decodeJSONLD decodes one or more concatenated JSON values. Raw control characters are
// treated as whitespace since publishers often embed literal newlines in strings.
// Values decoded before an error are returned alongside it.
func decodeJSONLD(raw string) ([]any, error) {
	sanitized := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(sanitized)))
	dec.UseNumber()

	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
}

// claimReviewObjects returns, in document order, every object in v that carries
// itemReviewed. Objects nested under a candidate are not searched.
func claimReviewObjects(v any) []map[string]any {
	var out []map[string]any
	var walk func(any)
	walk = func(node any) {
		switch t := node.(type) {
		case map[string]any:
			if _, ok := t[ClaimReviewMarker]; ok {
				out = append(out, t)
				return
			}
			for _, k := range sortedKeys(t) {
				walk(t[k])
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	return out
}

// resolveTopLevelURLs makes relative url and @id values absolute against baseURL.
func resolveTopLevelURLs(obj map[string]any, baseURL string) {
	for _, key := range []string{"url", "@id"} {
		s, ok := obj[key].(string)
		if !ok || s == "" {
			continue
		}
		if abs, ok := domain.Resolve(baseURL, s); ok {
			obj[key] = abs
		}
	}
}
