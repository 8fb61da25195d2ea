package scanner

import "time"

// SetNow overrides the orchestrator clock for tests.
func SetNow(o *Orchestrator, now func() time.Time) {
	o.now = now
}
