package feed_test

import (
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"newswatch/internal/feed"
)

var testNow = time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)

func validItem() *gofeed.Item {
	published := testNow.Add(-6 * time.Hour)
	return &gofeed.Item{
		Title:           "Council approves new transit budget",
		Link:            "https://wire.example.com/articles/transit-budget",
		Description:     "The council voted 7-2 to approve a transit budget expanding weekend service across the region.",
		PublishedParsed: &published,
	}
}

func TestNormalizeAcceptsValidItem(t *testing.T) {
	candidates, stats := feed.Normalize([]*gofeed.Item{validItem()}, 3, testNow, feed.NormalizeOptions{})
	if stats.Found != 1 || stats.Normalized != 1 || stats.RejectedTotal() != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	candidate := candidates[0]
	if candidate.SourceID != 3 {
		t.Fatalf("expected source 3, got %d", candidate.SourceID)
	}
	if candidate.CanonicalURL != "https://wire.example.com/articles/transit-budget" {
		t.Fatalf("unexpected canonical URL %q", candidate.CanonicalURL)
	}
	if candidate.ContentHash != feed.HashURL(candidate.CanonicalURL) {
		t.Fatal("content hash does not match canonical URL digest")
	}
	if len(candidate.ContentHash) != 64 {
		t.Fatalf("expected hex sha256 hash, got %q", candidate.ContentHash)
	}
}

func TestNormalizeCarriesExternalIDAndAuthor(t *testing.T) {
	item := validItem()
	item.GUID = "  tag:wire.example.com,2026:transit-budget  "
	item.Author = &gofeed.Person{Name: "  Dana   Whitfield  "}

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected candidate")
	}
	if candidates[0].ExternalID != "tag:wire.example.com,2026:transit-budget" {
		t.Fatalf("unexpected external id %q", candidates[0].ExternalID)
	}
	if candidates[0].Author != "Dana Whitfield" {
		t.Fatalf("unexpected author %q", candidates[0].Author)
	}
}

func TestNormalizeExternalIDFallsBackToCanonicalURL(t *testing.T) {
	item := validItem()
	item.GUID = "   "
	item.Link = "https://wire.example.com/articles/transit-budget/?utm_source=mail"

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected candidate")
	}
	if candidates[0].ExternalID != "https://wire.example.com/articles/transit-budget" {
		t.Fatalf("expected canonical URL fallback, got %q", candidates[0].ExternalID)
	}
}

func TestNormalizeAuthorFallsBackToAuthorsList(t *testing.T) {
	item := validItem()
	item.Author = nil
	item.Authors = []*gofeed.Person{nil, {Name: ""}, {Name: "Priya Raman"}}

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected candidate")
	}
	if candidates[0].Author != "Priya Raman" {
		t.Fatalf("unexpected author %q", candidates[0].Author)
	}
}

func TestNormalizeRejectsInvalidItems(t *testing.T) {
	old := testNow.Add(-30 * 24 * time.Hour)

	cases := []struct {
		name   string
		mutate func(*gofeed.Item)
		reason string
	}{
		{"missing link", func(i *gofeed.Item) { i.Link = "" }, feed.RejectNoLink},
		{"whitespace link", func(i *gofeed.Item) { i.Link = "   " }, feed.RejectNoLink},
		{"short title", func(i *gofeed.Item) { i.Title = "Hi" }, feed.RejectShortTitle},
		{"markup-only title", func(i *gofeed.Item) { i.Title = "<b><i></i></b>" }, feed.RejectShortTitle},
		{"relative url", func(i *gofeed.Item) { i.Link = "/articles/transit-budget" }, feed.RejectBadURL},
		{"ftp url", func(i *gofeed.Item) { i.Link = "ftp://wire.example.com/feed" }, feed.RejectBadURL},
		{"short lede", func(i *gofeed.Item) { i.Description = "Too short." }, feed.RejectShortLede},
		{"empty lede", func(i *gofeed.Item) { i.Description = "" }, feed.RejectShortLede},
		{"missing date", func(i *gofeed.Item) { i.PublishedParsed = nil }, feed.RejectBadDate},
		{"stale date", func(i *gofeed.Item) { i.PublishedParsed = &old }, feed.RejectStale},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := validItem()
			tc.mutate(item)
			candidates, stats := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
			if len(candidates) != 0 {
				t.Fatalf("expected rejection, got candidate %+v", candidates[0])
			}
			if stats.Rejected[tc.reason] != 1 {
				t.Fatalf("expected reason %q, got %+v", tc.reason, stats.Rejected)
			}
			if stats.RejectedTotal() != 1 {
				t.Fatalf("expected exactly one rejection, got %+v", stats.Rejected)
			}
		})
	}
}

func TestNormalizeRejectionOrderStopsAtFirstFailure(t *testing.T) {
	// An item failing several checks counts only under the earliest one.
	item := validItem()
	item.Title = "Hi"
	item.Description = "Too short."
	item.PublishedParsed = nil

	_, stats := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if stats.Rejected[feed.RejectShortTitle] != 1 || stats.RejectedTotal() != 1 {
		t.Fatalf("expected single short_title rejection, got %+v", stats.Rejected)
	}
}

func TestNormalizeCapsFutureDates(t *testing.T) {
	item := validItem()
	future := testNow.Add(48 * time.Hour)
	item.PublishedParsed = &future

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected future-dated item to survive")
	}
	if !candidates[0].PublishedAt.Equal(testNow) {
		t.Fatalf("expected publish time capped to now, got %v", candidates[0].PublishedAt)
	}
}

func TestNormalizeUsesUpdatedWhenPublishedMissing(t *testing.T) {
	item := validItem()
	updated := testNow.Add(-time.Hour)
	item.PublishedParsed = nil
	item.UpdatedParsed = &updated

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected item with updated date to survive")
	}
}

func TestNormalizeStripsMarkupFromLede(t *testing.T) {
	item := validItem()
	item.Description = "<p>The council voted <b>7-2</b> to approve a transit budget expanding weekend service.</p>"

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected candidate")
	}
	if strings.ContainsAny(candidates[0].Lede, "<>") {
		t.Fatalf("markup survived stripping: %q", candidates[0].Lede)
	}
	if !strings.Contains(candidates[0].Lede, "voted 7-2") {
		t.Fatalf("visible text lost: %q", candidates[0].Lede)
	}
}

func TestNormalizeTruncatesLede(t *testing.T) {
	item := validItem()
	item.Description = strings.Repeat("budget deliberations continued ", 40)

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{MaxLedeChars: 100})
	if len(candidates) != 1 {
		t.Fatal("expected candidate")
	}
	if got := len([]rune(candidates[0].Lede)); got > 100 {
		t.Fatalf("lede length %d exceeds limit", got)
	}
}

func TestNormalizePrefersSnippetOverDescription(t *testing.T) {
	item := validItem()
	item.Custom = map[string]string{
		"snippet": "A hand-written snippet that summarizes the transit budget vote in enough detail.",
	}

	candidates, _ := feed.Normalize([]*gofeed.Item{item}, 1, testNow, feed.NormalizeOptions{})
	if len(candidates) != 1 {
		t.Fatal("expected candidate")
	}
	if !strings.HasPrefix(candidates[0].Lede, "A hand-written snippet") {
		t.Fatalf("expected snippet text, got %q", candidates[0].Lede)
	}
}

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{
			"already canonical",
			"https://wire.example.com/articles/budget",
			"https://wire.example.com/articles/budget",
			true,
		},
		{
			"uppercase scheme and host",
			"HTTPS://Wire.Example.COM/articles/budget",
			"https://wire.example.com/articles/budget",
			true,
		},
		{
			"fragment dropped",
			"https://wire.example.com/articles/budget#section-2",
			"https://wire.example.com/articles/budget",
			true,
		},
		{
			"tracking params removed",
			"https://wire.example.com/articles/budget?utm_source=mail&utm_campaign=daily&fbclid=abc&gclid=xyz",
			"https://wire.example.com/articles/budget",
			true,
		},
		{
			"meaningful params kept",
			"https://wire.example.com/articles?id=42&utm_medium=social",
			"https://wire.example.com/articles?id=42",
			true,
		},
		{
			"trailing slash trimmed",
			"https://wire.example.com/articles/budget/",
			"https://wire.example.com/articles/budget",
			true,
		},
		{"relative", "/articles/budget", "", false},
		{"ftp", "ftp://wire.example.com/feed", "", false},
		{"empty", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := feed.CanonicalURL(tc.raw)
			if ok != tc.ok {
				t.Fatalf("CanonicalURL(%q) ok = %t, expected %t", tc.raw, ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("CanonicalURL(%q) = %q, expected %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestCanonicalURLEqualVariantsHashIdentically(t *testing.T) {
	a, _ := feed.CanonicalURL("https://wire.example.com/articles/budget?utm_source=mail")
	b, _ := feed.CanonicalURL("HTTPS://WIRE.example.com/articles/budget/#top")
	if feed.HashURL(a) != feed.HashURL(b) {
		t.Fatalf("expected identical hashes for %q and %q", a, b)
	}
}
