// Package topics pre-filters candidate articles with cheap keyword matching
// before they reach the external classifier.
package topics

import (
	"sort"
	"strings"

	"newswatch/internal/store"
)

// Match returns the IDs of every topic with at least one keyword appearing as
// a case-insensitive substring of the title or lede. The result is sorted and
// duplicate-free; the order of the input topics does not affect it.
func Match(title, lede string, topics []store.Topic) []int64 {
	haystack := strings.ToLower(title + " " + lede)

	matched := make(map[int64]bool)
	for _, topic := range topics {
		for _, keyword := range topic.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				continue
			}
			if strings.Contains(haystack, keyword) {
				matched[topic.ID] = true
				break
			}
		}
	}

	ids := make([]int64, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
