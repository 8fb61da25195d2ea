package main

import (
	"context"
	"strconv"
	"testing"

	"newswatch/internal/classify"
	"newswatch/internal/queue"
	"newswatch/internal/store"
	"newswatch/internal/testsupport"
)

func seedClassifiedArticle(t *testing.T, st *store.Store, status store.ArticleStatus) *store.Article {
	t.Helper()
	src := testsupport.NewSource(t, st, "Metro Report", "https://metro.example.com/feed.xml")
	article, inserted, err := st.InsertArticle(context.Background(), store.NewArticle{
		SourceID:    src.ID,
		URL:         "https://metro.example.com/light-rail-opens",
		ContentHash: "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90",
		Title:       "Light rail extension opens downtown",
		Lede:        "The long delayed light rail extension carried its first riders this morning.",
	})
	if err != nil || !inserted {
		t.Fatalf("InsertArticle: inserted=%v err=%v", inserted, err)
	}
	if err := st.SetArticleStatus(context.Background(), article.ID, status); err != nil {
		t.Fatalf("SetArticleStatus: %v", err)
	}
	return article
}

func TestReanalyzeQueuesMatchedTopics(t *testing.T) {
	env := setupCLITestEnv(t)
	st := env.openStore(t)
	article := seedClassifiedArticle(t, st, store.ArticleIrrelevant)
	topic := testsupport.NewTopic(t, st, "transit", "light rail")

	out, err := runCLI(t, env, "reanalyze", strconv.FormatInt(article.ID, 10))
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	requireContains(t, out, "Queued classification")

	qs := queue.NewStore(st, queue.Options{})
	job, err := qs.Claim(context.Background(), queue.QueueClassify)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job == nil {
		t.Fatal("no classification job enqueued")
	}
	var payload classify.Job
	if err := job.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.ArticleID != article.ID {
		t.Fatalf("article id = %d, want %d", payload.ArticleID, article.ID)
	}
	if len(payload.TopicIDs) != 1 || payload.TopicIDs[0] != topic.ID {
		t.Fatalf("topic ids = %v, want [%d]", payload.TopicIDs, topic.ID)
	}

	refreshed, err := st.GetArticle(context.Background(), article.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if refreshed.Status != store.ArticlePending {
		t.Fatalf("status = %s, want pending", refreshed.Status)
	}
}

func TestReanalyzeUnmatchedArticleMarkedIrrelevant(t *testing.T) {
	env := setupCLITestEnv(t)
	st := env.openStore(t)
	article := seedClassifiedArticle(t, st, store.ArticleRelevant)
	testsupport.NewTopic(t, st, "housing", "zoning board")

	out, err := runCLI(t, env, "reanalyze", strconv.FormatInt(article.ID, 10))
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	requireContains(t, out, "matches no active topic")

	refreshed, err := st.GetArticle(context.Background(), article.ID)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if refreshed.Status != store.ArticleIrrelevant {
		t.Fatalf("status = %s, want irrelevant", refreshed.Status)
	}
}

func TestReanalyzeRejectsPendingArticle(t *testing.T) {
	env := setupCLITestEnv(t)
	st := env.openStore(t)
	article := seedClassifiedArticle(t, st, store.ArticlePending)

	if _, err := runCLI(t, env, "reanalyze", strconv.FormatInt(article.ID, 10)); err == nil {
		t.Fatal("expected error for article not in a terminal classification state")
	}
}
