// Package storage provides durable task storage for taskintake using NATS KV.
package storage

import (
	"time"
)

// SchemaVersion is the current task record schema. Version 1 predates the
// optional responsible and deadline fields; Initialize upgrades old records
// in place.
const SchemaVersion = 2

// Task represents a persisted task record.
//
// Responsible and Deadline are nil when the submitter skipped them.
// Deadline, when set, has already passed deadline.Validate; the store
// does not re-validate it.
type Task struct {
	ID          int64     `json:"id"`
	Schema      int       `json:"schema"`
	Text        string    `json:"text"`
	Submitter   string    `json:"submitter"`
	Responsible *string   `json:"responsible"`
	Deadline    *string   `json:"deadline"`
	CreatedAt   time.Time `json:"created_at"`
}
