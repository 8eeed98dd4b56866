package store

import (
	"strings"
	"time"
)

// QueuedTask is one unit of work held in the durable offline queue. It is
// keyed by DedupKey; a second enqueue with the same key collapses into the
// existing row.
type QueuedTask struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	UserMessage     string    `json:"user_message"`
	ContextSummary  string    `json:"context_summary"`
	TaskDescription string    `json:"task_description"`
	Strategy        string    `json:"strategy"`
	DedupKey        string    `json:"dedup_key"`
	QueuedAt        time.Time `json:"queued_at"`
	DuplicateCount  int       `json:"duplicate_count"`
}

// DedupKey derives the deduplication key for a (message, task) pair:
// normalized message and task joined by "::".
func DedupKey(userMessage, taskDescription string) string {
	return normalize(userMessage) + "::" + normalize(taskDescription)
}

// normalize lowercases and collapses all whitespace runs to single spaces
// so that trivially reworded duplicates still collide.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
