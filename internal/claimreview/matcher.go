// Package claimreview turns ClaimReview data, from the aggregator feed or from a
// fact-check page, into records listing the external URLs each claim points at.
package claimreview

import (
	"sort"
	"strconv"
	"strings"

	"github.com/IshaanNene/itemreviewed/internal/domain"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// DefaultItemReviewedPaths are the places inside itemReviewed where publishers put
// the URL of the reviewed content. "*" matches any key or index at one level.
var DefaultItemReviewedPaths = []string{
	"url",
	"sameAs",
	"appearance/url",
	"appearance/sameAs",
	"appearance/*/url",
	"appearance/*/sameAs",
	"firstAppearance/url",
	"firstAppearance/*/url",
	"itemReviewed/url",
}

// Matcher resolves the external URLs of an itemReviewed descriptor.
// It is immutable and safe for concurrent use.
type Matcher struct {
	paths    []string
	segments [][]string
	resolver *domain.Resolver
}

// NewMatcher creates a Matcher for the given glob paths. Empty paths fall back to
// DefaultItemReviewedPaths and a nil resolver gets a private memoizing one.
func NewMatcher(paths []string, resolver *domain.Resolver) *Matcher {
	if len(paths) == 0 {
		paths = DefaultItemReviewedPaths
	}
	if resolver == nil {
		resolver = domain.NewResolver(0)
	}

	m := &Matcher{
		paths:    append([]string(nil), paths...),
		resolver: resolver,
	}
	for _, p := range m.paths {
		m.segments = append(m.segments, strings.Split(strings.Trim(p, "/"), "/"))
	}
	return m
}

// Paths returns a copy of the configured paths.
func (m *Matcher) Paths() []string {
	return append([]string(nil), m.paths...)
}

// Resolve returns the URLs found at the configured paths whose eTLD+1 differs from
// the fact-check URL's, deduplicated in first-seen order. Leaves without a resolvable
// eTLD+1 are dropped. It returns nil, never an empty slice, when nothing survives.
func (m *Matcher) Resolve(desc types.Descriptor, factcheckURL string) []string {
	factDomain, factOK := m.resolver.ETLD1(factcheckURL)

	roots := []any{desc}
	if arr, ok := desc.([]any); ok {
		roots = arr
	}

	var out []string
	seen := make(map[string]struct{})
	keep := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return
		}
		d, ok := m.resolver.ETLD1(candidate)
		if !ok || (factOK && d == factDomain) {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	for _, root := range roots {
		for _, segs := range m.segments {
			for _, leaf := range globValues(root, segs) {
				switch v := leaf.(type) {
				case string:
					keep(v)
				case []any:
					for _, el := range v {
						if s, ok := el.(string); ok {
							keep(s)
						}
					}
				}
			}
		}
	}
	return out
}

// globValues returns the values reached by following segs from node.
// Map keys matched by "*" are visited in sorted order; numeric segments index arrays.
func globValues(node any, segs []string) []any {
	if len(segs) == 0 {
		return []any{node}
	}
	seg, rest := segs[0], segs[1:]

	var out []any
	switch t := node.(type) {
	case map[string]any:
		if seg == "*" {
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				out = append(out, globValues(t[k], rest)...)
			}
			return out
		}
		if child, ok := t[seg]; ok {
			out = append(out, globValues(child, rest)...)
		}
	case []any:
		if seg == "*" {
			for _, child := range t {
				out = append(out, globValues(child, rest)...)
			}
			return out
		}
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(t) {
			out = append(out, globValues(t[i], rest)...)
		}
	}
	return out
}
