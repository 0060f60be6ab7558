package intake

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360studio/taskintake/deadline"
	"github.com/c360studio/taskintake/metrics"
	"github.com/c360studio/taskintake/storage"
)

// Prompt texts shown to the user at each intake step.
const (
	promptText        = "Enter the task description:"
	promptTextEmpty   = "The task description cannot be empty. Enter the task description:"
	promptResponsible = "Enter the name of the person responsible for the task (or skip):"
	promptDeadline    = "Enter the deadline as: day, month, year, for example: 25, январь, 2025 (or skip):"
)

const helpText = `Available actions:
- start: add a new task (description, then optional responsible and deadline)
- list: show all tasks
- delete <id>: remove a task
- export: download all tasks
- cancel: abandon the task being added`

// TaskStore is the persistence surface the engine needs. *storage.Store
// satisfies it; tests substitute a fake.
type TaskStore interface {
	Create(ctx context.Context, text, submitter string, responsible, deadline *string) (*storage.Task, error)
	ListAll(ctx context.Context) ([]*storage.Task, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Engine is the intake state machine. It consumes events, advances
// per-conversation sessions, validates deadlines, and persists completed
// intakes. Handle serializes events per conversation, so independent
// conversations proceed concurrently while a single conversation never
// sees two events at once.
type Engine struct {
	store    TaskStore
	sessions *Registry
	logger   *slog.Logger
	metrics  *metrics.Intake

	// locks serialize Handle per conversation. The transport subscribes
	// to each event subject independently and NATS dispatches every
	// subscription on its own goroutine, so a text and a skip for the
	// same conversation can arrive concurrently.
	locks [conversationLockStripes]sync.Mutex
}

const conversationLockStripes = 64

// NewEngine creates an intake engine.
func NewEngine(store TaskStore, sessions *Registry, logger *slog.Logger, m *metrics.Intake) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Engine{
		store:    store,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// Handle processes one event and returns the outcome for the transport to
// render. A failure inside one conversation never affects another; errors
// surface as outcome values, not panics.
func (e *Engine) Handle(ctx context.Context, ev Event) Outcome {
	mu := e.conversationLock(ev.Conversation())
	mu.Lock()
	defer mu.Unlock()

	switch ev := ev.(type) {
	case *StartRequested:
		return e.handleStart(ev)
	case *TextReceived:
		return e.handleText(ctx, ev)
	case *SkipRequested:
		return e.handleSkip(ctx, ev)
	case *CancelRequested:
		return e.handleCancel(ev)
	case *ListRequested:
		return e.handleList(ctx)
	case *DeleteRequested:
		return e.handleDelete(ctx, ev)
	case *ExportRequested:
		return e.handleExport(ctx)
	case *HelpRequested:
		return &HelpText{Text: helpText}
	default:
		e.logger.Warn("unknown event type", "type", fmt.Sprintf("%T", ev))
		return &NoActiveIntake{}
	}
}

// conversationLock maps a conversation onto a lock stripe. Distinct
// conversations may share a stripe; that costs throughput, never
// correctness.
func (e *Engine) conversationLock(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return &e.locks[h.Sum32()%conversationLockStripes]
}

func (e *Engine) handleStart(ev *StartRequested) Outcome {
	e.sessions.Begin(ev.ConversationID, ev.Submitter)
	e.logger.Info("intake started", "conversation_id", ev.ConversationID)
	return &Prompt{Text: promptText}
}

func (e *Engine) handleText(ctx context.Context, ev *TextReceived) Outcome {
	sess := e.sessions.Get(ev.ConversationID)
	if sess == nil {
		return e.stale(ev.ConversationID, "text")
	}
	if ev.Submitter != "" {
		sess.Submitter = ev.Submitter
	}
	e.sessions.Touch(ev.ConversationID)

	input := strings.TrimSpace(ev.Text)

	switch sess.Step {
	case StepText:
		if input == "" {
			return &Prompt{Text: promptTextEmpty}
		}
		sess.Text = input
		sess.Step = StepResponsible
		return &Prompt{Text: promptResponsible, OffersSkip: true}

	case StepResponsible:
		// An empty name would be indistinguishable from a skipped field
		// in exports; ask again instead of storing "".
		if input == "" {
			return &Prompt{Text: promptResponsible, OffersSkip: true}
		}
		sess.Responsible = &input
		sess.Step = StepDeadline
		return &Prompt{Text: promptDeadline, OffersSkip: true}

	case StepDeadline:
		date, err := deadline.Validate(input)
		if err != nil {
			var rej *deadline.RejectionError
			if errors.As(err, &rej) {
				e.metrics.ValidationRejections.WithLabelValues(string(rej.Reason)).Inc()
				e.logger.Debug("deadline rejected",
					"conversation_id", ev.ConversationID,
					"reason", string(rej.Reason))
				return &Prompt{
					Text:       fmt.Sprintf("%s\n%s", rej.Message, promptDeadline),
					OffersSkip: true,
				}
			}
			return &Prompt{Text: promptDeadline, OffersSkip: true}
		}
		canonical := date.String()
		sess.Deadline = &canonical
		return e.complete(ctx, sess)

	default:
		return e.stale(ev.ConversationID, "text")
	}
}

func (e *Engine) handleSkip(ctx context.Context, ev *SkipRequested) Outcome {
	sess := e.sessions.Get(ev.ConversationID)
	if sess == nil {
		return e.stale(ev.ConversationID, "skip")
	}
	e.sessions.Touch(ev.ConversationID)

	switch sess.Step {
	case StepText:
		// The description is required; a skip here is a stray control
		// from a stale keyboard.
		return &Prompt{Text: promptTextEmpty}
	case StepResponsible:
		sess.Step = StepDeadline
		return &Prompt{Text: promptDeadline, OffersSkip: true}
	case StepDeadline:
		return e.complete(ctx, sess)
	default:
		return e.stale(ev.ConversationID, "skip")
	}
}

func (e *Engine) handleCancel(ev *CancelRequested) Outcome {
	if !e.sessions.Remove(ev.ConversationID) {
		return e.stale(ev.ConversationID, "cancel")
	}
	e.logger.Info("intake cancelled", "conversation_id", ev.ConversationID)
	return &Cancelled{}
}

// complete persists the accumulated session. The session is discarded
// whether the store call succeeds or not; on failure the user must
// re-initiate, there is no automatic retry.
func (e *Engine) complete(ctx context.Context, sess *Session) Outcome {
	defer e.sessions.Remove(sess.ConversationID)

	task, err := e.store.Create(ctx, sess.Text, sess.Submitter, sess.Responsible, sess.Deadline)
	if err != nil {
		e.metrics.CreateFailures.Inc()
		e.logger.Error("task creation failed",
			"conversation_id", sess.ConversationID,
			"error", err)
		return &TaskCreationFailed{}
	}

	e.metrics.TasksCreated.Inc()
	e.logger.Info("task created",
		"conversation_id", sess.ConversationID,
		"task_id", task.ID)
	return &TaskCreated{Task: task}
}

func (e *Engine) handleList(ctx context.Context) Outcome {
	tasks, err := e.store.ListAll(ctx)
	if err != nil {
		e.logger.Error("list tasks failed", "error", err)
		return &OperationFailed{Op: "list"}
	}
	return &TaskList{Tasks: tasks}
}

func (e *Engine) handleDelete(ctx context.Context, ev *DeleteRequested) Outcome {
	deleted, err := e.store.Delete(ctx, ev.TaskID)
	if err != nil {
		e.logger.Error("delete task failed", "task_id", ev.TaskID, "error", err)
		return &OperationFailed{Op: "delete"}
	}
	return &TaskDeleted{ID: ev.TaskID, Deleted: deleted}
}

func (e *Engine) handleExport(ctx context.Context) Outcome {
	tasks, err := e.store.ListAll(ctx)
	if err != nil {
		e.logger.Error("export tasks failed", "error", err)
		return &OperationFailed{Op: "export"}
	}
	return &ExportPayload{Tasks: tasks}
}

func (e *Engine) stale(conversationID, event string) Outcome {
	e.metrics.StaleEvents.Inc()
	e.logger.Debug("event with no active intake",
		"conversation_id", conversationID,
		"event", event)
	return &NoActiveIntake{}
}
