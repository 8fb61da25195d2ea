// Package feed retrieves syndication feeds and normalizes their items into
// candidate articles.
//
// Fetching paces requests per source, trips a circuit breaker on repeated
// host failures, and retries transient errors. Normalization applies a fixed
// sequence of validity checks and canonicalizes links before hashing.
package feed
