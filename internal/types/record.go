package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/IshaanNene/itemreviewed/internal/domain"
)

// ClaimReviewRecord is the normalized output for one fact-check.
type ClaimReviewRecord struct {
	FactcheckURL    string          `json:"factcheck_url"`
	ClaimReviewed   *string         `json:"claim_reviewed"`
	ClaimTranslated *string         `json:"claim_translated,omitempty"`
	ReviewRating    json.RawMessage `json:"review_rating"`
	DatePublished   *string         `json:"factcheck_date_published"`

	// ItemsReviewed is nil when no external URL survived domain filtering.
	ItemsReviewed []string `json:"items_reviewed"`

	// Links holds page-level anchor context, one entry per located URL.
	Links []LinkContext `json:"links,omitempty"`

	// TranslationRequested makes claim_translated appear in the output,
	// as null if translation was skipped or failed.
	TranslationRequested bool `json:"-"`
}

// HasItems reports whether at least one reviewed URL was resolved.
func (r *ClaimReviewRecord) HasItems() bool {
	return r != nil && len(r.ItemsReviewed) > 0
}

// Claim returns the claim text or "" when absent.
func (r *ClaimReviewRecord) Claim() string {
	if r == nil || r.ClaimReviewed == nil {
		return ""
	}
	return *r.ClaimReviewed
}

// Key identifies one claim: the canonical fact-check URL, the claim text and the
// reviewed URLs. An article reviewing several claims yields one key per claim.
func (r *ClaimReviewRecord) Key() string {
	h := sha256.New()
	h.Write([]byte(domain.CanonicalizeURL(r.FactcheckURL)))
	h.Write([]byte{0})
	h.Write([]byte(r.Claim()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(r.ItemsReviewed, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalJSON keeps UTF-8 and HTML characters unescaped and controls claim_translated.
func (r ClaimReviewRecord) MarshalJSON() ([]byte, error) {
	type plain ClaimReviewRecord
	if !r.TranslationRequested {
		return marshalUnescaped(plain(r))
	}
	return marshalUnescaped(struct {
		plain
		ClaimTranslated *string `json:"claim_translated"`
	}{plain(r), r.ClaimTranslated})
}

// LinkContext describes the anchor that references a reviewed URL on a fact-check page.
type LinkContext struct {
	ItemReviewed        string            `json:"itemreviewed"`
	OtherAttributes     map[string]string `json:"link_element_other_attributes"`
	LinkRank            *int              `json:"link_rank"`
	NumberOfAncestors   int               `json:"number_of_ancestors"`
	NumberOfDescendants int               `json:"number_of_descendants"`
	IsInternalLink      bool              `json:"is_internal_link"`
	LinkText            *LinkText         `json:"link_text,omitempty"`
}

// LinkText is the text surrounding an anchor.
type LinkText struct {
	ParentText   string `json:"parent_element_text"`
	LinkText     string `json:"link_element_text"`
	TailText     string `json:"link_element_tail_text"`
	CombinedText string `json:"text_combine"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
