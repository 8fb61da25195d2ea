package testsupport

import (
	"context"
	"testing"

	"newswatch/internal/config"
	"newswatch/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewSource creates an active feed source for tests.
func NewSource(t testing.TB, st *store.Store, name, feedURL string) *store.Source {
	t.Helper()

	src, err := st.CreateSource(context.Background(), store.NewSource{
		Name:     name,
		Category: store.CategoryRegional,
		FeedURL:  feedURL,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("store.CreateSource: %v", err)
	}
	return src
}

// NewTopic creates an active topic with the given keywords for tests.
func NewTopic(t testing.TB, st *store.Store, name string, keywords ...string) *store.Topic {
	t.Helper()

	topic, err := st.CreateTopic(context.Background(), store.NewTopic{
		Name:     name,
		Keywords: keywords,
		Prompt:   "Is this article about " + name + "?",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("store.CreateTopic: %v", err)
	}
	return topic
}
