package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

// Rejection reasons, in the order the checks run.
const (
	RejectNoLink     = "no_link"
	RejectShortTitle = "short_title"
	RejectBadURL     = "bad_url"
	RejectShortLede  = "short_lede"
	RejectBadDate    = "bad_date"
	RejectStale      = "stale"
)

const (
	minTitleChars = 5
	minLedeChars  = 30
)

// NormalizeOptions tunes the normalization pipeline.
type NormalizeOptions struct {
	// MaxLedeChars truncates the extracted lede. Zero means 500.
	MaxLedeChars int
	// FreshnessHorizon rejects items published earlier than now minus this
	// window. Zero means seven days.
	FreshnessHorizon time.Duration
}

func (o NormalizeOptions) normalized() NormalizeOptions {
	if o.MaxLedeChars <= 0 {
		o.MaxLedeChars = 500
	}
	if o.FreshnessHorizon <= 0 {
		o.FreshnessHorizon = 7 * 24 * time.Hour
	}
	return o
}

// Candidate is a feed item that passed every validity check.
type Candidate struct {
	SourceID     int64
	ExternalID   string
	Title        string
	Lede         string
	CanonicalURL string
	ContentHash  string
	Author       string
	PublishedAt  time.Time
}

// Stats counts normalization outcomes per feed.
type Stats struct {
	Found      int
	Normalized int
	Rejected   map[string]int
}

func (s *Stats) reject(reason string) {
	if s.Rejected == nil {
		s.Rejected = make(map[string]int)
	}
	s.Rejected[reason]++
}

// RejectedTotal sums rejections across reasons.
func (s Stats) RejectedTotal() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// Normalize converts raw feed items into candidates. Checks run in a fixed
// order per item and the first failing check decides the rejection reason:
// missing link, short title, bad canonical URL, short lede, bad or stale
// publication date. Future dates are capped to now rather than rejected.
func Normalize(items []*gofeed.Item, sourceID int64, now time.Time, opts NormalizeOptions) ([]Candidate, Stats) {
	opts = opts.normalized()
	stats := Stats{Found: len(items)}
	candidates := make([]Candidate, 0, len(items))

	for _, item := range items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			stats.reject(RejectNoLink)
			continue
		}

		title := collapseWhitespace(stripMarkup(item.Title))
		if utf8.RuneCountInString(title) < minTitleChars {
			stats.reject(RejectShortTitle)
			continue
		}

		canonical, ok := CanonicalURL(item.Link)
		if !ok {
			stats.reject(RejectBadURL)
			continue
		}

		lede := extractLede(item, opts.MaxLedeChars)
		if utf8.RuneCountInString(lede) < minLedeChars {
			stats.reject(RejectShortLede)
			continue
		}

		published, ok := publishedAt(item)
		if !ok {
			stats.reject(RejectBadDate)
			continue
		}
		if published.After(now) {
			published = now
		}
		if published.Before(now.Add(-opts.FreshnessHorizon)) {
			stats.reject(RejectStale)
			continue
		}

		candidates = append(candidates, Candidate{
			SourceID:     sourceID,
			ExternalID:   externalID(item, canonical),
			Title:        title,
			Lede:         lede,
			CanonicalURL: canonical,
			ContentHash:  HashURL(canonical),
			Author:       authorName(item),
			PublishedAt:  published.UTC(),
		})
	}

	stats.Normalized = len(candidates)
	return candidates, stats
}

// trackingParams are stripped during canonicalization so the same article
// shared through different campaigns hashes identically.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
}

// CanonicalURL normalizes a link for hashing: absolute http(s) only,
// lowercase scheme and host, fragment dropped, tracking parameters removed,
// trailing slash trimmed.
func CanonicalURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !parsed.IsAbs() {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()

	canonical := parsed.String()
	canonical = strings.TrimSuffix(canonical, "/")
	return canonical, true
}

// HashURL returns the hex sha256 digest of a canonical URL.
func HashURL(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// extractLede probes the richest available summary text in preference order.
func extractLede(item *gofeed.Item, maxChars int) string {
	fields := []string{
		customField(item, "snippet"),
		customField(item, "summary"),
		item.Description,
		item.Content,
	}
	for _, raw := range fields {
		text := collapseWhitespace(stripMarkup(raw))
		if text == "" {
			continue
		}
		return truncateRunes(text, maxChars)
	}
	return ""
}

func customField(item *gofeed.Item, key string) string {
	if item.Custom == nil {
		return ""
	}
	return item.Custom[key]
}

// externalID prefers the feed-provided guid and falls back to the canonical
// URL so every candidate carries a stable identifier.
func externalID(item *gofeed.Item, canonical string) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	return canonical
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil {
		if name := collapseWhitespace(stripMarkup(item.Author.Name)); name != "" {
			return name
		}
	}
	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if name := collapseWhitespace(stripMarkup(author.Name)); name != "" {
			return name
		}
	}
	return ""
}

func publishedAt(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed, true
	}
	return time.Time{}, false
}

// stripMarkup removes tags and decodes entities, then applies NFC so visually
// identical strings compare equal.
func stripMarkup(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			text = doc.Text()
		}
	}
	return norm.NFC.String(text)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
