// Package services defines shared helpers consumed by the workers that talk
// to external systems (feed hosts, the relevance scorer, the draft writer).
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that tag failures for
//     consistent retry and status decisions across workers.
//   - Retryability classification keyed off the markers.
package services
