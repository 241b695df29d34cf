package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestFeedItemEligible(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"complete", `{"url":"https://a.example/x","itemReviewed":{"url":"https://b.example"}}`, true},
		{"missing url", `{"itemReviewed":{"url":"https://b.example"}}`, false},
		{"empty url", `{"url":"","itemReviewed":{"url":"https://b.example"}}`, false},
		{"null url", `{"url":null,"itemReviewed":{"url":"https://b.example"}}`, false},
		{"non-string url", `{"url":42,"itemReviewed":{"url":"https://b.example"}}`, false},
		{"missing itemReviewed", `{"url":"https://a.example/x"}`, false},
		{"null itemReviewed", `{"url":"https://a.example/x","itemReviewed":null}`, false},
		{"empty itemReviewed", `{"url":"https://a.example/x","itemReviewed":{}}`, false},
		{"false itemReviewed", `{"url":"https://a.example/x","itemReviewed":false}`, false},
		{"string itemReviewed", `{"url":"https://a.example/x","itemReviewed":"claim"}`, true},
		{"not an object", `"hello"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item FeedItem
			if err := json.Unmarshal([]byte(tt.raw), &item); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := item.Eligible(); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDataFeedDecode(t *testing.T) {
	raw := `{"dataFeedElement":[
		{"item":[{"url":"https://a.example/1","itemReviewed":{"url":"https://b.example"}}]},
		{"item":{"url":"https://a.example/2","itemReviewed":{"url":"https://c.example"}}},
		{"name":"no items"},
		"garbage"
	]}`

	var feed DataFeed
	if err := json.Unmarshal([]byte(raw), &feed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(feed.DataFeedElement) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(feed.DataFeedElement))
	}
	if len(feed.DataFeedElement[0].Item) != 1 || len(feed.DataFeedElement[1].Item) != 1 {
		t.Error("expected one item in each of the first two elements")
	}
	if len(feed.DataFeedElement[2].Item) != 0 || len(feed.DataFeedElement[3].Item) != 0 {
		t.Error("expected no items in the last two elements")
	}
}

func TestRecordMarshalJSON(t *testing.T) {
	rec := ClaimReviewRecord{
		FactcheckURL:  "https://factcheck.example/a",
		ClaimReviewed: StringPtr("Ça & <là> est faux"),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "claim_translated") {
		t.Errorf("claim_translated should be omitted when not requested: %s", out)
	}
	if !strings.Contains(out, `"items_reviewed":null`) {
		t.Errorf("items_reviewed should be null: %s", out)
	}
	if !strings.Contains(out, `"review_rating":null`) {
		t.Errorf("review_rating should be null: %s", out)
	}
	if !strings.Contains(out, "Ça") {
		t.Errorf("non-ASCII text should be preserved: %s", out)
	}

	rec.TranslationRequested = true
	data, err = json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"claim_translated":null`) {
		t.Errorf("claim_translated should be null when requested and missing: %s", data)
	}
}

func TestRecordKey(t *testing.T) {
	one := &ClaimReviewRecord{
		FactcheckURL:  "https://factcheck.example/roundup",
		ClaimReviewed: StringPtr("Claim one"),
		ItemsReviewed: []string{"https://a.example/1"},
	}
	two := &ClaimReviewRecord{
		FactcheckURL:  "https://factcheck.example/roundup",
		ClaimReviewed: StringPtr("Claim two"),
		ItemsReviewed: []string{"https://b.example/2"},
	}
	if one.Key() == two.Key() {
		t.Error("claims on the same article must have distinct keys")
	}

	same := &ClaimReviewRecord{
		FactcheckURL:  "HTTPS://FactCheck.example/roundup#claim-1",
		ClaimReviewed: StringPtr("Claim one"),
		ItemsReviewed: []string{"https://a.example/1"},
	}
	if one.Key() != same.Key() {
		t.Error("canonically equal urls with the same claim should share a key")
	}

	moreItems := &ClaimReviewRecord{
		FactcheckURL:  one.FactcheckURL,
		ClaimReviewed: one.ClaimReviewed,
		ItemsReviewed: []string{"https://a.example/1", "https://c.example/3"},
	}
	if one.Key() == moreItems.Key() {
		t.Error("different reviewed urls should change the key")
	}
	if len(one.Key()) != 64 {
		t.Errorf("expected a hex sha256 key, got %q", one.Key())
	}
}

func TestTranslationErrorIs(t *testing.T) {
	cause := errors.New("provider down")
	err := error(&TranslationError{Text: "hola", Attempts: 3, Err: cause})

	if !errors.Is(err, ErrTranslationFailed) {
		t.Error("expected errors.Is to match ErrTranslationFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to match the wrapped cause")
	}
}

func TestFetchErrorKind(t *testing.T) {
	err := &FetchError{URL: "https://a.example", Kind: KindTransport, Err: errors.New("dial tcp")}
	if !err.IsTransport() {
		t.Error("expected transport kind")
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Errorf("error string should name the kind: %s", err.Error())
	}

	err = &FetchError{URL: "https://a.example", StatusCode: 500, Kind: KindTerminal, Attempts: 5, Err: ErrMaxRetries}
	if !errors.Is(err, ErrMaxRetries) {
		t.Error("expected ErrMaxRetries to be wrapped")
	}
}
