// Package scanner drives scan runs: the orchestrator fans active sources out
// into fetch jobs, and the fetch worker turns one source's feed into stored
// articles and classification jobs.
//
// A scan run is identified by a run ID shared by the orchestration scan log
// and every per-source scan log it fans out. Source failures stay isolated:
// one broken feed never aborts the run.
package scanner
