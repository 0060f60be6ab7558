package intake

import "github.com/c360studio/taskintake/storage"

// Outcome is a value emitted by the engine describing what happened.
// The transport renders outcomes for the user; the engine never formats
// chat markup.
type Outcome interface {
	// Kind is the wire discriminator for the outcome envelope.
	Kind() string
}

// Prompt asks the user for the next piece of input. OffersSkip tells the
// transport to render a skip control alongside the prompt.
type Prompt struct {
	Text       string `json:"text"`
	OffersSkip bool   `json:"offers_skip"`
}

// Kind returns the outcome discriminator.
func (*Prompt) Kind() string { return "prompt" }

// TaskCreated reports a completed intake with the stored record.
type TaskCreated struct {
	Task *storage.Task `json:"task"`
}

// Kind returns the outcome discriminator.
func (*TaskCreated) Kind() string { return "task_created" }

// TaskCreationFailed reports that the store rejected the completed
// intake. The session is gone; the user must start over.
type TaskCreationFailed struct{}

// Kind returns the outcome discriminator.
func (*TaskCreationFailed) Kind() string { return "task_creation_failed" }

// TaskList carries all stored tasks, most recent first.
type TaskList struct {
	Tasks []*storage.Task `json:"tasks"`
}

// Kind returns the outcome discriminator.
func (*TaskList) Kind() string { return "task_list" }

// TaskDeleted reports the result of a delete request. Deleted is false
// when no task with the given ID existed.
type TaskDeleted struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// Kind returns the outcome discriminator.
func (*TaskDeleted) Kind() string { return "task_deleted" }

// ExportPayload carries all stored tasks for bulk export, most recent
// first. Serialization is the transport's concern.
type ExportPayload struct {
	Tasks []*storage.Task `json:"tasks"`
}

// Kind returns the outcome discriminator.
func (*ExportPayload) Kind() string { return "export" }

// Cancelled confirms the intake was abandoned with no store interaction.
type Cancelled struct{}

// Kind returns the outcome discriminator.
func (*Cancelled) Kind() string { return "cancelled" }

// NoActiveIntake reports an event for a conversation whose intake no
// longer exists or has moved past the step the event targets. The user
// should start over.
type NoActiveIntake struct{}

// Kind returns the outcome discriminator.
func (*NoActiveIntake) Kind() string { return "no_active_intake" }

// OperationFailed reports a storage failure during a list, delete, or
// export request.
type OperationFailed struct {
	Op string `json:"op"`
}

// Kind returns the outcome discriminator.
func (*OperationFailed) Kind() string { return "operation_failed" }

// HelpText lists the available actions.
type HelpText struct {
	Text string `json:"text"`
}

// Kind returns the outcome discriminator.
func (*HelpText) Kind() string { return "help" }
