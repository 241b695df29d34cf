package pipeline

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/itemreviewed/internal/domain"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// ClaimCleanMiddleware strips markup from claim text, decodes HTML entities and
// collapses whitespace. Publishers often leave both in claimReviewed. It only runs
// when pipeline.clean_claims is set; by default claims are stored verbatim.
type ClaimCleanMiddleware struct{}

func NewClaimCleanMiddleware() *ClaimCleanMiddleware {
	return &ClaimCleanMiddleware{}
}

func (m *ClaimCleanMiddleware) Name() string { return "claim_clean" }

func (m *ClaimCleanMiddleware) Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error) {
	rec.ClaimReviewed = m.clean(rec.ClaimReviewed)
	rec.ClaimTranslated = m.clean(rec.ClaimTranslated)
	if rec.DatePublished != nil {
		d := strings.TrimSpace(*rec.DatePublished)
		rec.DatePublished = &d
	}
	return rec, nil
}

// clean keeps nil as nil so absent values stay null.
func (m *ClaimCleanMiddleware) clean(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := strings.Join(strings.Fields(textContent(*s)), " ")
	return &cleaned
}

// textContent tokenizes s as an HTML fragment and keeps the text tokens, which
// the tokenizer has already unescaped. A '<' that does not open a tag is text.
func textContent(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// ItemsFilterMiddleware removes reviewed URLs (and their link context) whose host
// is on a deny list, such as URL shorteners or archive mirrors. Records left with no
// items get a null items_reviewed.
type ItemsFilterMiddleware struct {
	hosts map[string]struct{}
}

func NewItemsFilterMiddleware(hosts []string) *ItemsFilterMiddleware {
	m := &ItemsFilterMiddleware{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			m.hosts[h] = struct{}{}
		}
	}
	return m
}

func (m *ItemsFilterMiddleware) Name() string { return "items_filter" }

func (m *ItemsFilterMiddleware) Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error) {
	if len(m.hosts) == 0 || len(rec.ItemsReviewed) == 0 {
		return rec, nil
	}

	var items []string
	for _, u := range rec.ItemsReviewed {
		if !m.denied(u) {
			items = append(items, u)
		}
	}
	rec.ItemsReviewed = items

	if len(rec.Links) > 0 {
		var links []types.LinkContext
		for _, l := range rec.Links {
			if !m.denied(l.ItemReviewed) {
				links = append(links, l)
			}
		}
		rec.Links = links
	}
	return rec, nil
}

func (m *ItemsFilterMiddleware) denied(rawURL string) bool {
	host := domain.Host(rawURL)
	for host != "" {
		if _, ok := m.hosts[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
	return false
}
