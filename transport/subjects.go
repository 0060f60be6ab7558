// Package transport binds the intake engine to NATS: it decodes events
// off per-event-type subjects, hands them to the engine, and publishes
// outcome envelopes back to the owning conversation.
//
// Chat front-ends (a Telegram adapter, a CLI shell) speak these subjects;
// the engine itself never touches the network.
package transport

// Event subjects, one per event type so consumers can subscribe
// selectively and route by subject.
const (
	SubjectEventStart  = "tasks.event.start"
	SubjectEventText   = "tasks.event.text"
	SubjectEventSkip   = "tasks.event.skip"
	SubjectEventCancel = "tasks.event.cancel"

	SubjectIntentList   = "tasks.intent.list"
	SubjectIntentDelete = "tasks.intent.delete"
	SubjectIntentExport = "tasks.intent.export"
	SubjectIntentHelp   = "tasks.intent.help"
)

// outcomeSubjectPrefix is where outcomes are published when the event
// carries no reply subject. Conversation IDs must be valid NATS subject
// tokens (chat platform IDs are).
const outcomeSubjectPrefix = "tasks.outcome."

// OutcomeSubject returns the outcome subject for a conversation.
func OutcomeSubject(conversationID string) string {
	return outcomeSubjectPrefix + conversationID
}
