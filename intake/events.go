// Package intake implements the conversational task-intake pipeline: the
// per-conversation session registry and the state machine that turns
// transport events into outcomes.
package intake

import "fmt"

// Event is an input delivered by the chat transport. Implementations are
// plain data; the transport decodes them off the wire and hands them to
// Engine.Handle.
type Event interface {
	// Validate checks the event is well-formed before it reaches the
	// state machine.
	Validate() error

	// Conversation identifies the conversation the event belongs to.
	// The transport uses it to route the outcome back.
	Conversation() string
}

// StartRequested begins a new intake conversation. Any intake already in
// progress for the conversation is restarted from scratch.
type StartRequested struct {
	ConversationID string `json:"conversation_id"`
	Submitter      string `json:"submitter"`
}

// Conversation returns the owning conversation ID.
func (e *StartRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *StartRequested) Validate() error {
	if e.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	if e.Submitter == "" {
		return fmt.Errorf("submitter is required")
	}
	return nil
}

// TextReceived carries free-text user input for the active intake step.
type TextReceived struct {
	ConversationID string `json:"conversation_id"`
	Submitter      string `json:"submitter"`
	Text           string `json:"text"`
}

// Conversation returns the owning conversation ID.
func (e *TextReceived) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *TextReceived) Validate() error {
	if e.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	return nil
}

// SkipRequested skips the current optional step.
type SkipRequested struct {
	ConversationID string `json:"conversation_id"`
}

// Conversation returns the owning conversation ID.
func (e *SkipRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *SkipRequested) Validate() error {
	if e.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	return nil
}

// CancelRequested abandons the active intake without touching the store.
type CancelRequested struct {
	ConversationID string `json:"conversation_id"`
}

// Conversation returns the owning conversation ID.
func (e *CancelRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *CancelRequested) Validate() error {
	if e.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	return nil
}

// ListRequested asks for all stored tasks, most recent first.
type ListRequested struct {
	ConversationID string `json:"conversation_id"`
}

// Conversation returns the owning conversation ID.
func (e *ListRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *ListRequested) Validate() error { return nil }

// DeleteRequested asks for removal of a task by ID.
type DeleteRequested struct {
	ConversationID string `json:"conversation_id"`
	TaskID         int64  `json:"task_id"`
}

// Conversation returns the owning conversation ID.
func (e *DeleteRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *DeleteRequested) Validate() error {
	if e.TaskID <= 0 {
		return fmt.Errorf("task_id must be positive")
	}
	return nil
}

// ExportRequested asks for all stored tasks for bulk export.
type ExportRequested struct {
	ConversationID string `json:"conversation_id"`
}

// Conversation returns the owning conversation ID.
func (e *ExportRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *ExportRequested) Validate() error { return nil }

// HelpRequested asks for the list of available actions.
type HelpRequested struct {
	ConversationID string `json:"conversation_id"`
}

// Conversation returns the owning conversation ID.
func (e *HelpRequested) Conversation() string { return e.ConversationID }

// Validate validates the event.
func (e *HelpRequested) Validate() error { return nil }
