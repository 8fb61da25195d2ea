// Package logging provides slog construction and the standardized structured
// attributes used across the pipeline. Workers derive per-job loggers through
// context helpers so every record carries its queue, job, and source fields.
package logging
