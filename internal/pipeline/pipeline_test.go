package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newRecord(url string, items ...string) *types.ClaimReviewRecord {
	rec := &types.ClaimReviewRecord{FactcheckURL: url}
	if len(items) > 0 {
		rec.ItemsReviewed = items
	}
	return rec
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }

func (failingMiddleware) Process(rec *types.ClaimReviewRecord) (*types.ClaimReviewRecord, error) {
	return nil, errors.New("boom")
}

func TestPipelineBasic(t *testing.T) {
	p := Default(testLogger)
	if p.Len() != 2 {
		t.Fatalf("expected 2 default middleware, got %d", p.Len())
	}

	claim := "Inflation < 2% and unemployment > 10%"
	rec := newRecord("https://factcheck.example/a", "https://social.example.net/1")
	rec.ClaimReviewed = types.StringPtr(claim)

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result == nil {
		t.Fatal("record with items should pass")
	}
	if got := result.Claim(); got != claim {
		t.Errorf("default chain must keep the claim verbatim, got %q", got)
	}
}

func TestPipelineCleanClaims(t *testing.T) {
	p := NewFromConfig(config.PipelineConfig{CleanClaims: true}, testLogger)
	if p.Len() != 3 {
		t.Fatalf("expected 3 middleware with cleaning, got %d", p.Len())
	}

	rec := newRecord("https://factcheck.example/a", "https://social.example.net/1")
	rec.ClaimReviewed = types.StringPtr("  The <em>moon</em> is   made of cheese &amp; crackers ")
	result, _ := p.Process(rec)
	if got := result.Claim(); got != "The moon is made of cheese & crackers" {
		t.Errorf("expected cleaned claim, got %q", got)
	}
}

func TestPipelineError(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})

	rec := newRecord("https://factcheck.example/a", "https://x.example.com/")
	_, err := p.Process(rec)

	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	if pe.Stage != "failing" || pe.Record != rec {
		t.Errorf("unexpected error details: stage=%s", pe.Stage)
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{}

	if result, _ := m.Process(newRecord("https://factcheck.example/a", "https://x.example.com/")); result == nil {
		t.Error("record with items should pass")
	}
	if result, _ := m.Process(newRecord("https://factcheck.example/a")); result != nil {
		t.Error("record with null items_reviewed should be dropped")
	}
	if result, _ := m.Process(newRecord("", "https://x.example.com/")); result != nil {
		t.Error("record without factcheck_url should be dropped")
	}

	keep := &RequiredFieldsMiddleware{KeepWithoutItems: true}
	if result, _ := keep.Process(newRecord("https://factcheck.example/a")); result == nil {
		t.Error("KeepWithoutItems should keep records with null items")
	}
}

func TestClaimCleanMiddleware(t *testing.T) {
	m := NewClaimCleanMiddleware()
	rec := newRecord("https://factcheck.example/a")
	rec.ClaimReviewed = types.StringPtr("<p>Hello <b>World</b></p> &amp; <a href=\"x\">link</a>")
	rec.DatePublished = types.StringPtr(" 2021-03-01 ")

	result, err := m.Process(rec)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if got := result.Claim(); got != "Hello World & link" {
		t.Errorf("expected 'Hello World & link', got %q", got)
	}
	if result.ClaimTranslated != nil {
		t.Error("absent translation must stay nil")
	}
	if *result.DatePublished != "2021-03-01" {
		t.Errorf("expected trimmed date, got %q", *result.DatePublished)
	}
}

func TestClaimCleanKeepsComparisons(t *testing.T) {
	m := NewClaimCleanMiddleware()

	tests := []struct {
		in, want string
	}{
		{"Inflation < 2% and unemployment > 10%", "Inflation < 2% and unemployment > 10%"},
		{"<b>bold</b> &amp; x", "bold & x"},
		{"Taxes &lt;b&gt; rose", "Taxes <b> rose"},
		{"a\n\t b", "a b"},
	}
	for _, tt := range tests {
		rec := newRecord("https://factcheck.example/a")
		rec.ClaimReviewed = types.StringPtr(tt.in)
		result, _ := m.Process(rec)
		if got := result.Claim(); got != tt.want {
			t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware()

	if result, err := m.Process(newRecord("https://factcheck.example/a")); err != nil || result == nil {
		t.Fatal("first record should pass dedup")
	}

	// Same page after canonicalization
	if result, _ := m.Process(newRecord("HTTPS://FactCheck.example/a/#top")); result != nil {
		t.Error("duplicate record should be dropped (nil result)")
	}

	if result, err := m.Process(newRecord("https://factcheck.example/b")); err != nil || result == nil {
		t.Fatal("different URL should pass dedup")
	}
	if m.Seen() != 2 {
		t.Errorf("expected 2 distinct records, got %d", m.Seen())
	}

	m.Reset()
	if m.Seen() != 0 {
		t.Errorf("expected empty set after reset, got %d", m.Seen())
	}
	if result, _ := m.Process(newRecord("https://factcheck.example/a")); result == nil {
		t.Error("record should pass again after reset")
	}
}

func TestDedupKeepsEveryClaimOfAnArticle(t *testing.T) {
	p := NewFromConfig(config.PipelineConfig{}, testLogger)

	one := newRecord("https://factcheck.example/roundup", "https://a.example/1")
	one.ClaimReviewed = types.StringPtr("Claim one")
	two := newRecord("https://factcheck.example/roundup", "https://b.example/2")
	two.ClaimReviewed = types.StringPtr("Claim two")
	again := newRecord("https://factcheck.example/roundup", "https://a.example/1")
	again.ClaimReviewed = types.StringPtr("Claim one")

	kept, errs := p.ProcessAll([]*types.ClaimReviewRecord{one, two, again})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(kept) != 2 {
		t.Fatalf("expected both claims kept and the repeat dropped, got %d", len(kept))
	}
	if kept[0].Claim() != "Claim one" || kept[1].Claim() != "Claim two" {
		t.Errorf("unexpected claims: %q, %q", kept[0].Claim(), kept[1].Claim())
	}
}

func TestProcessAllReusedPipeline(t *testing.T) {
	p := Default(testLogger)

	for run := 1; run <= 2; run++ {
		kept, _ := p.ProcessAll([]*types.ClaimReviewRecord{
			newRecord("https://factcheck.example/x", "https://x.example.com/"),
		})
		if len(kept) != 1 {
			t.Errorf("run %d: expected 1 record, got %d", run, len(kept))
		}
	}
}

func TestItemsFilterMiddleware(t *testing.T) {
	m := NewItemsFilterMiddleware([]string{"bit.ly", " Web.Archive.org "})

	rec := newRecord("https://factcheck.example/a",
		"https://bit.ly/abc",
		"https://web.archive.org/web/2020/https://x.example.com/",
		"https://social.example.net/post/1",
	)
	rec.Links = []types.LinkContext{
		{ItemReviewed: "https://bit.ly/abc"},
		{ItemReviewed: "https://social.example.net/post/1"},
	}

	result, _ := m.Process(rec)
	if len(result.ItemsReviewed) != 1 || result.ItemsReviewed[0] != "https://social.example.net/post/1" {
		t.Errorf("unexpected items %v", result.ItemsReviewed)
	}
	if len(result.Links) != 1 {
		t.Errorf("expected link context to follow items, got %d", len(result.Links))
	}

	all := newRecord("https://factcheck.example/b", "https://sub.bit.ly/x")
	result, _ = m.Process(all)
	if result.ItemsReviewed != nil {
		t.Errorf("expected null items when every url is excluded, got %v", result.ItemsReviewed)
	}
}

func TestProcessAll(t *testing.T) {
	p := NewFromConfig(config.PipelineConfig{ExcludeHosts: []string{"bit.ly"}}, testLogger)

	records := []*types.ClaimReviewRecord{
		newRecord("https://factcheck.example/1", "https://x.example.com/"),
		nil,
		newRecord("https://factcheck.example/2"),
		newRecord("https://factcheck.example/1/", "https://x.example.com/"),
		newRecord("https://factcheck.example/3", "https://bit.ly/z"),
		newRecord("https://factcheck.example/4", "https://z.example.com/"),
	}

	kept, errs := p.ProcessAll(records)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(kept) != 2 {
		t.Fatalf("expected 2 records, got %d", len(kept))
	}
	if kept[0].FactcheckURL != "https://factcheck.example/1" || kept[1].FactcheckURL != "https://factcheck.example/4" {
		t.Errorf("unexpected order: %s, %s", kept[0].FactcheckURL, kept[1].FactcheckURL)
	}
}

// --- Benchmarks ---

func BenchmarkPipeline(b *testing.B) {
	p := New(testLogger)
	p.Use(&RequiredFieldsMiddleware{})
	p.Use(NewClaimCleanMiddleware())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := newRecord("https://factcheck.example/a", "https://x.example.com/")
		rec.ClaimReviewed = types.StringPtr("  Hello <b>World</b>  ")
		p.Process(rec)
	}
}
