package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Descriptor is a decoded itemReviewed graph: nested map[string]any, []any and scalars.
type Descriptor = any

// DataFeed is the aggregator document.
type DataFeed struct {
	DataFeedElement []FeedElement `json:"dataFeedElement"`
}

// FeedElement groups the claim reviews published for one entry of the feed.
type FeedElement struct {
	Item []FeedItem `json:"item"`
}

// UnmarshalJSON accepts a single object where a list of items is expected.
func (e *FeedElement) UnmarshalJSON(data []byte) error {
	var raw struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Non-object elements carry no items.
		*e = FeedElement{}
		return nil
	}
	body := bytes.TrimSpace(raw.Item)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		e.Item = nil
	case body[0] == '[':
		return json.Unmarshal(body, &e.Item)
	case body[0] == '{':
		var one FeedItem
		if err := json.Unmarshal(body, &one); err != nil {
			return err
		}
		e.Item = []FeedItem{one}
	}
	return nil
}

// FeedItem is one claim review from the aggregator feed or a page's JSON-LD block.
// Fields that are missing or of the wrong type decode to nil.
type FeedItem struct {
	URL           *string
	ClaimReviewed *string
	DatePublished *string
	ReviewRating  json.RawMessage
	ItemReviewed  json.RawMessage
}

// UnmarshalJSON decodes leniently; a non-object item becomes the zero value.
func (f *FeedItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		*f = FeedItem{}
		return nil
	}
	*f = FeedItem{
		URL:           optString(fields["url"]),
		ClaimReviewed: optString(fields["claimReviewed"]),
		DatePublished: optString(fields["datePublished"]),
		ReviewRating:  nonNull(fields["reviewRating"]),
		ItemReviewed:  nonNull(fields["itemReviewed"]),
	}
	return nil
}

// MarshalJSON writes the item back under its schema.org keys.
func (f FeedItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 5)
	if f.URL != nil {
		out["url"] = *f.URL
	}
	if f.ClaimReviewed != nil {
		out["claimReviewed"] = *f.ClaimReviewed
	}
	if f.DatePublished != nil {
		out["datePublished"] = *f.DatePublished
	}
	if f.ReviewRating != nil {
		out["reviewRating"] = f.ReviewRating
	}
	if f.ItemReviewed != nil {
		out["itemReviewed"] = f.ItemReviewed
	}
	return json.Marshal(out)
}

// Eligible reports whether the item has a url and a non-empty itemReviewed.
func (f FeedItem) Eligible() bool {
	if f.URL == nil || *f.URL == "" {
		return false
	}
	return truthy(f.Descriptor())
}

// Descriptor decodes itemReviewed. It returns nil when absent or malformed.
func (f FeedItem) Descriptor() Descriptor {
	if len(f.ItemReviewed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(f.ItemReviewed, &v); err != nil {
		return nil
	}
	return v
}

// FeedItemFromMap converts a decoded JSON-LD object into a FeedItem.
func FeedItemFromMap(m map[string]any) (FeedItem, error) {
	var item FeedItem
	data, err := marshalUnescaped(m)
	if err != nil {
		return item, fmt.Errorf("encoding json-ld block: %w", err)
	}
	if err := json.Unmarshal(data, &item); err != nil {
		return item, fmt.Errorf("decoding json-ld block: %w", err)
	}
	return item, nil
}

func optString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
