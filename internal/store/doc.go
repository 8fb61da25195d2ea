// Package store manages the durable SQLite state: sources, articles, topics,
// per-topic analysis results, scan logs, and daily summaries. The articles
// table's unique content-hash constraint is the pipeline's source of truth
// for deduplication; everything layered above it is advisory.
package store
