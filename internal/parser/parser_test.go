package parser

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const factcheckURL = "https://factcheck.example/checks/moon?ref=home"

const claimReviewHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Is the moon made of cheese?</title>
    <script type="application/ld+json">{"@context":"https://schema.org","@type":"Organization","name":"Fact Desk"}</script>
    <script type="application/ld+json">
    {"@context":"https://schema.org","@type":"ClaimReview","url":"/checks/moon",
     "claimReviewed":"The moon is made of cheese","datePublished":"2021-03-01",
     "reviewRating":{"@type":"Rating","ratingValue":1,"alternateName":"False"},
     "itemReviewed":{"@type":"Claim","appearance":[{"@type":"CreativeWork","url":"https://social.example.net/post/42"}]}}
    </script>
</head>
<body>
    <div class="article">
        <p>The claim <a href="https://social.example.net/post/42/" class="src" rel="nofollow">first appeared here</a> last week.</p>
        <p>See also <a href="/about">our method</a> and <a href="mailto:desk@factcheck.example">mail</a>.</p>
    </div>
    <footer><a href="https://other.example.org/x">x</a></footer>
</body>
</html>`

func mustParse(t *testing.T, body string) (*html.Node, *goquery.Document) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return root, goquery.NewDocumentFromNode(root)
}

// --- Structured Data Tests ---

func TestHasClaimReview(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"claim review page", claimReviewHTML, true},
		{"json-ld without marker", `<html><head><script type="application/ld+json">{"@type":"Article"}</script></head></html>`, false},
		{"marker in plain script", `<html><head><script>var itemReviewed = 1;</script></head></html>`, false},
		{"no scripts", `<html><body><p>itemReviewed</p></body></html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, _ := mustParse(t, tt.body)
			if got := HasClaimReview(root); got != tt.want {
				t.Errorf("HasClaimReview() = %v, want %v", got, tt.want)
			}
		})
	}

	if HasClaimReview(nil) {
		t.Error("nil document should not have a claim review")
	}
}

func TestExtractClaimReview(t *testing.T) {
	_, doc := mustParse(t, claimReviewHTML)
	ex := NewClaimReviewExtractor(testLogger)

	block, ok := ex.Extract(doc, factcheckURL)
	if !ok {
		t.Fatal("expected a claim review block")
	}
	if block["@type"] != "ClaimReview" {
		t.Errorf("expected the ClaimReview block, got %v", block["@type"])
	}
	if block["url"] != "https://factcheck.example/checks/moon" {
		t.Errorf("expected url resolved against the page, got %v", block["url"])
	}
	if block["claimReviewed"] != "The moon is made of cheese" {
		t.Errorf("unexpected claimReviewed %v", block["claimReviewed"])
	}
}

func TestExtractTakesFirstBlock(t *testing.T) {
	body := `<html><head>
<script type="application/ld+json">{ broken </script>
<script type="application/ld+json">[
  {"@type":"ClaimReview","itemReviewed":{"url":"https://a.example"}},
  {"@type":"ClaimReview","itemReviewed":{"url":"https://b.example"}}
]</script>
<script type="application/ld+json">{"@graph":[{"@type":"WebPage"},{"@type":"ClaimReview","itemReviewed":{"url":"https://c.example"}}]}</script>
<script type="application/ld+json"><!-- {"@type":"ClaimReview","itemReviewed":{"url":"https://d.example"}} --></script>
</head></html>`
	_, doc := mustParse(t, body)
	ex := NewClaimReviewExtractor(testLogger)

	all := ex.ExtractAll(doc, factcheckURL)
	if len(all) != 4 {
		t.Fatalf("expected 4 candidate blocks, got %d", len(all))
	}

	first, ok := ex.Extract(doc, factcheckURL)
	if !ok {
		t.Fatal("expected a block")
	}
	item := first["itemReviewed"].(map[string]any)
	if item["url"] != "https://a.example" {
		t.Errorf("expected the first block to win, got %v", item["url"])
	}
}

func TestExtractToleratesRawNewlines(t *testing.T) {
	body := "<html><head><script type=\"application/ld+json\">{\"claimReviewed\":\"line one\nline two\",\"itemReviewed\":{\"url\":\"https://d.example\"}}</script></head></html>"
	_, doc := mustParse(t, body)

	block, ok := NewClaimReviewExtractor(testLogger).Extract(doc, factcheckURL)
	if !ok {
		t.Fatal("expected block with raw newline to decode")
	}
	if block["claimReviewed"] != "line one line two" {
		t.Errorf("unexpected claimReviewed %q", block["claimReviewed"])
	}
}

func TestExtractNone(t *testing.T) {
	_, doc := mustParse(t, `<html><head><script type="application/ld+json">{"@type":"Article"}</script></head></html>`)
	if _, ok := NewClaimReviewExtractor(testLogger).Extract(doc, factcheckURL); ok {
		t.Error("expected no claim review")
	}
}

// --- Link Locator Tests ---

func TestLocateLink(t *testing.T) {
	root, _ := mustParse(t, claimReviewHTML)

	ctx := LocateLink(root, "https://social.example.net/post/42", factcheckURL)
	if ctx == nil {
		t.Fatal("expected the anchor to be located")
	}
	if ctx.ItemReviewed != "https://social.example.net/post/42" {
		t.Errorf("unexpected itemreviewed %q", ctx.ItemReviewed)
	}
	if ctx.LinkRank == nil || *ctx.LinkRank != 0 {
		t.Errorf("expected link rank 0, got %v", ctx.LinkRank)
	}
	if ctx.NumberOfAncestors != 4 {
		t.Errorf("expected 4 ancestors (p, div, body, html), got %d", ctx.NumberOfAncestors)
	}
	if ctx.NumberOfDescendants != 0 {
		t.Errorf("expected 0 descendants, got %d", ctx.NumberOfDescendants)
	}
	if ctx.IsInternalLink {
		t.Error("expected an external link")
	}
	if _, ok := ctx.OtherAttributes["href"]; ok {
		t.Error("href must be excluded from other attributes")
	}
	if ctx.OtherAttributes["class"] != "src" || ctx.OtherAttributes["rel"] != "nofollow" {
		t.Errorf("unexpected attributes %v", ctx.OtherAttributes)
	}
	if ctx.LinkText == nil || ctx.LinkText.CombinedText != "The claim first appeared here last week." {
		t.Errorf("unexpected link text %+v", ctx.LinkText)
	}
}

func TestLocateLinkInternalAndRank(t *testing.T) {
	root, _ := mustParse(t, claimReviewHTML)

	ctx := LocateLink(root, "https://factcheck.example/about", factcheckURL)
	if ctx == nil {
		t.Fatal("expected relative href to match after resolution")
	}
	if !ctx.IsInternalLink {
		t.Error("expected an internal link")
	}
	if ctx.LinkRank == nil || *ctx.LinkRank != 1 {
		t.Errorf("expected link rank 1, got %v", ctx.LinkRank)
	}
}

func TestLocateLinkRelativeTarget(t *testing.T) {
	root, _ := mustParse(t, claimReviewHTML)

	ctx := LocateLink(root, "/about", factcheckURL)
	if ctx == nil {
		t.Fatal("expected a relative target to be located")
	}
	if ctx.ItemReviewed != "https://factcheck.example/about" {
		t.Errorf("expected the resolved target, got %q", ctx.ItemReviewed)
	}
	if !ctx.IsInternalLink {
		t.Error("expected an internal link")
	}
}

func TestLocateLinkOutsideParagraphs(t *testing.T) {
	root, _ := mustParse(t, claimReviewHTML)

	ctx := LocateLink(root, "https://other.example.org/x", factcheckURL)
	if ctx == nil {
		t.Fatal("expected footer anchor to be found")
	}
	if ctx.LinkRank != nil {
		t.Errorf("footer link should have no rank, got %d", *ctx.LinkRank)
	}
	if ctx.NumberOfAncestors != 3 {
		t.Errorf("expected 3 ancestors (footer, body, html), got %d", ctx.NumberOfAncestors)
	}
}

func TestLocateLinkMissing(t *testing.T) {
	root, _ := mustParse(t, claimReviewHTML)
	if ctx := LocateLink(root, "https://nowhere.example/", factcheckURL); ctx != nil {
		t.Errorf("expected nil, got %+v", ctx)
	}
}

func TestExtractLinkText(t *testing.T) {
	root, _ := mustParse(t, `<html><body><div><a href="https://x.example"><img src="i.png"></a></div><p>Read <a id="l" href="https://y.example"><b>this</b></a></p></body></html>`)

	anchors := FindAnchor(root, "https://x.example", factcheckURL)
	if anchors == nil {
		t.Fatal("anchor not found")
	}
	if lt := ExtractLinkText(anchors); lt != nil {
		t.Errorf("expected nil for an anchor without text, got %+v", lt)
	}

	nested := FindAnchor(root, "https://y.example", factcheckURL)
	lt := ExtractLinkText(nested)
	if lt == nil {
		t.Fatal("expected parent text")
	}
	if lt.ParentText != "Read " || lt.LinkText != "" || lt.TailText != "" {
		t.Errorf("unexpected parts %+v", lt)
	}
	if CountDescendants(nested) != 1 {
		t.Errorf("expected 1 descendant element, got %d", CountDescendants(nested))
	}
}
