// Package queue implements the durable, prioritized job queues connecting
// pipeline stages. Jobs live in the shared SQLite database, so they survive
// restarts; delivery is at-least-once — a claimed job holds a lease and is
// handed back to pending when the lease expires. Each logical queue runs its
// own bounded pool of polling workers.
package queue
