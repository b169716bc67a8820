// Package cron persists and executes scheduled jobs on the gateway's hook
// bus, with retries and a concurrency cap.
package cron

import "time"

// Job is one persisted schedule. Timestamps serialize as ISO-8601 (RFC 3339).
type Job struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	CronExpression  string     `json:"cron_expression"`
	Command         string     `json:"command"`
	ChannelID       string     `json:"channel_id"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"`
	ExecutionCount  int        `json:"execution_count"`
	FailureCount    int        `json:"failure_count"`
	LastError       string     `json:"last_error,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
}

// Clone returns a deep copy so callers can mutate without racing the store
// cache.
func (j *Job) Clone() *Job {
	c := *j
	if j.LastExecutedAt != nil {
		t := *j.LastExecutedAt
		c.LastExecutedAt = &t
	}
	if j.NextExecutionAt != nil {
		t := *j.NextExecutionAt
		c.NextExecutionAt = &t
	}
	return &c
}
