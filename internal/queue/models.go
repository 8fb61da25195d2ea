package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Logical queue names. Payload shapes are owned by the packages that consume
// each queue.
const (
	QueueScan     = "scan-orchestration"
	QueueFetch    = "source-fetch"
	QueueClassify = "classification"
	QueueGenerate = "content-generation"
	QueueDigest   = "daily-digest"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one unit of queued work.
type Job struct {
	ID             int64
	Queue          string
	Key            string
	Payload        []byte
	Priority       int
	Status         Status
	Attempts       int
	MaxAttempts    int
	RunAfter       time.Time
	LastError      string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DecodePayload unmarshals the job payload into target.
func (j *Job) DecodePayload(target any) error {
	if err := json.Unmarshal(j.Payload, target); err != nil {
		return fmt.Errorf("decode payload for job %d: %w", j.ID, err)
	}
	return nil
}

// Counts aggregates job totals per status for one queue.
type Counts struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Total returns the sum across statuses.
func (c Counts) Total() int {
	return c.Pending + c.Running + c.Completed + c.Failed
}
