package intake_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/taskintake/intake"
	"github.com/c360studio/taskintake/metrics"
	"github.com/c360studio/taskintake/storage"
)

// fakeStore is an in-memory TaskStore for engine tests.
type fakeStore struct {
	tasks  []*storage.Task
	nextID int64

	failCreate bool
	failList   bool
	failDelete bool
}

func (f *fakeStore) Create(_ context.Context, text, submitter string, responsible, deadline *string) (*storage.Task, error) {
	if f.failCreate {
		return nil, fmt.Errorf("kv unavailable")
	}
	f.nextID++
	t := &storage.Task{
		ID:          f.nextID,
		Schema:      storage.SchemaVersion,
		Text:        text,
		Submitter:   submitter,
		Responsible: responsible,
		Deadline:    deadline,
		CreatedAt:   time.Now().UTC(),
	}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeStore) ListAll(context.Context) ([]*storage.Task, error) {
	if f.failList {
		return nil, fmt.Errorf("kv unavailable")
	}
	return f.tasks, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) (bool, error) {
	if f.failDelete {
		return false, fmt.Errorf("kv unavailable")
	}
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(store intake.TaskStore) (*intake.Engine, *intake.Registry) {
	m := metrics.New(prometheus.NewRegistry())
	reg := intake.NewRegistry(testLogger(), m)
	return intake.NewEngine(store, reg, testLogger(), m), reg
}

func TestEngine_HappyPathWithSkipAndDeadline(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	out := engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	prompt, ok := out.(*intake.Prompt)
	if !ok {
		t.Fatalf("start: got %T, want *Prompt", out)
	}
	if prompt.OffersSkip {
		t.Error("text prompt must not offer skip")
	}

	out = engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Submitter: "alice", Text: "Buy milk"})
	prompt, ok = out.(*intake.Prompt)
	if !ok {
		t.Fatalf("text: got %T, want *Prompt", out)
	}
	if !prompt.OffersSkip {
		t.Error("responsible prompt should offer skip")
	}

	out = engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})
	if prompt, ok = out.(*intake.Prompt); !ok || !prompt.OffersSkip {
		t.Fatalf("skip responsible: got %#v, want deadline prompt with skip", out)
	}

	out = engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "15, март, 2025"})
	created, ok := out.(*intake.TaskCreated)
	if !ok {
		t.Fatalf("deadline: got %T, want *TaskCreated", out)
	}

	if created.Task.Text != "Buy milk" {
		t.Errorf("got text %q", created.Task.Text)
	}
	if created.Task.Submitter != "alice" {
		t.Errorf("got submitter %q", created.Task.Submitter)
	}
	if created.Task.Responsible != nil {
		t.Errorf("responsible should be unset, got %v", *created.Task.Responsible)
	}
	if created.Task.Deadline == nil || *created.Task.Deadline != "15, март, 2025" {
		t.Errorf("got deadline %v", created.Task.Deadline)
	}

	if reg.Len() != 0 {
		t.Error("session should be discarded after completion")
	}
}

func TestEngine_ResponsibleStoredTrimmed(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Task"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "  Иванов И.И.  "})
	out := engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})

	created, ok := out.(*intake.TaskCreated)
	if !ok {
		t.Fatalf("got %T, want *TaskCreated", out)
	}
	if created.Task.Responsible == nil || *created.Task.Responsible != "Иванов И.И." {
		t.Errorf("got responsible %v", created.Task.Responsible)
	}
	if created.Task.Deadline != nil {
		t.Errorf("deadline should be unset, got %v", *created.Task.Deadline)
	}
}

func TestEngine_EmptyResponsibleReprompts(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Task"})
	out := engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "   "})

	prompt, ok := out.(*intake.Prompt)
	if !ok || !prompt.OffersSkip {
		t.Fatalf("got %#v, want responsible re-prompt with skip", out)
	}
	if sess := reg.Get("c1"); sess == nil || sess.Step != intake.StepResponsible {
		t.Fatal("state advanced on whitespace-only responsible")
	}

	engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})
	out = engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})
	created, ok := out.(*intake.TaskCreated)
	if !ok {
		t.Fatalf("got %T, want *TaskCreated", out)
	}
	if created.Task.Responsible != nil {
		t.Errorf("responsible should be unset, got %q", *created.Task.Responsible)
	}
}

func TestEngine_EmptyTextDoesNotAdvance(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	out := engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "   "})

	prompt, ok := out.(*intake.Prompt)
	if !ok {
		t.Fatalf("got %T, want *Prompt", out)
	}
	if prompt.OffersSkip {
		t.Error("re-prompt for required text must not offer skip")
	}
	if sess := reg.Get("c1"); sess == nil || sess.Step != intake.StepText {
		t.Error("state advanced on empty text")
	}
}

func TestEngine_InvalidDeadlineRepromptsThenAdvances(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Task"})
	engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})

	out := engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "32, март, 2025"})
	if _, ok := out.(*intake.Prompt); !ok {
		t.Fatalf("invalid deadline: got %T, want *Prompt", out)
	}
	if sess := reg.Get("c1"); sess == nil || sess.Step != intake.StepDeadline {
		t.Fatal("state advanced past deadline step on invalid input")
	}
	if len(store.tasks) != 0 {
		t.Fatal("nothing should be stored on rejection")
	}

	out = engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "31, март, 2025"})
	if _, ok := out.(*intake.TaskCreated); !ok {
		t.Fatalf("valid deadline: got %T, want *TaskCreated", out)
	}
}

func TestEngine_CancelDiscardsWithoutStore(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Task"})

	out := engine.Handle(ctx, &intake.CancelRequested{ConversationID: "c1"})
	if _, ok := out.(*intake.Cancelled); !ok {
		t.Fatalf("got %T, want *Cancelled", out)
	}
	if reg.Len() != 0 {
		t.Error("session should be gone after cancel")
	}
	if len(store.tasks) != 0 {
		t.Error("cancel must not touch the store")
	}
}

func TestEngine_StaleEvents(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	tests := []struct {
		name  string
		event intake.Event
	}{
		{"text without session", &intake.TextReceived{ConversationID: "ghost", Text: "hi"}},
		{"skip without session", &intake.SkipRequested{ConversationID: "ghost"}},
		{"cancel without session", &intake.CancelRequested{ConversationID: "ghost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := engine.Handle(ctx, tt.event)
			if _, ok := out.(*intake.NoActiveIntake); !ok {
				t.Errorf("got %T, want *NoActiveIntake", out)
			}
		})
	}
}

func TestEngine_SkipDuringTextStepReprompts(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	out := engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})

	if _, ok := out.(*intake.Prompt); !ok {
		t.Fatalf("got %T, want *Prompt", out)
	}
	if sess := reg.Get("c1"); sess == nil || sess.Step != intake.StepText {
		t.Error("skip must not advance past the required text step")
	}
}

func TestEngine_StoreFailureSurfacesOnceAndDiscardsSession(t *testing.T) {
	store := &fakeStore{failCreate: true}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Task"})
	engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})
	out := engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})

	if _, ok := out.(*intake.TaskCreationFailed); !ok {
		t.Fatalf("got %T, want *TaskCreationFailed", out)
	}
	if reg.Len() != 0 {
		t.Error("session should be discarded even on store failure")
	}
}

func TestEngine_RestartReplacesSession(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "First draft"})
	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})

	sess := reg.Get("c1")
	if sess == nil || sess.Step != intake.StepText || sess.Text != "" {
		t.Errorf("restart should reset the session, got %+v", sess)
	}
}

func TestEngine_ConcurrentEventsForOneConversation(t *testing.T) {
	store := &fakeStore{}
	engine, reg := newTestEngine(store)
	ctx := context.Background()

	// The transport delivers each event subject on its own goroutine, so
	// a text and a skip for one conversation can land at the same time.
	// Handle must serialize them; the race detector guards the rest.
	for i := 0; i < 200; i++ {
		engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
		engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Buy milk"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			engine.Handle(ctx, &intake.TextReceived{ConversationID: "c1", Text: "Иванов"})
		}()
		go func() {
			defer wg.Done()
			engine.Handle(ctx, &intake.SkipRequested{ConversationID: "c1"})
		}()
		wg.Wait()

		engine.Handle(ctx, &intake.CancelRequested{ConversationID: "c1"})
	}

	for _, task := range store.tasks {
		if task.Text != "Buy milk" {
			t.Fatalf("task %d has text %q, interleaved handling corrupted the session", task.ID, task.Text)
		}
	}
	if reg.Len() != 0 {
		t.Errorf("got %d sessions left, want 0", reg.Len())
	}
}

func TestEngine_NilMetricsUsesNop(t *testing.T) {
	reg := intake.NewRegistry(testLogger(), nil)
	engine := intake.NewEngine(&fakeStore{}, reg, testLogger(), nil)
	ctx := context.Background()

	engine.Handle(ctx, &intake.StartRequested{ConversationID: "c1", Submitter: "alice"})
	out := engine.Handle(ctx, &intake.SkipRequested{ConversationID: "ghost"})
	if _, ok := out.(*intake.NoActiveIntake); !ok {
		t.Fatalf("got %T, want *NoActiveIntake", out)
	}

	time.Sleep(2 * time.Millisecond)
	if evicted := reg.Sweep(time.Millisecond); evicted != 1 {
		t.Errorf("got %d evicted, want 1", evicted)
	}
}

func TestEngine_Queries(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	if _, err := store.Create(ctx, "one", "alice", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, "two", "bob", nil, nil); err != nil {
		t.Fatal(err)
	}

	out := engine.Handle(ctx, &intake.ListRequested{ConversationID: "c1"})
	list, ok := out.(*intake.TaskList)
	if !ok {
		t.Fatalf("list: got %T, want *TaskList", out)
	}
	if len(list.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(list.Tasks))
	}

	out = engine.Handle(ctx, &intake.ExportRequested{ConversationID: "c1"})
	export, ok := out.(*intake.ExportPayload)
	if !ok {
		t.Fatalf("export: got %T, want *ExportPayload", out)
	}
	if len(export.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(export.Tasks))
	}

	out = engine.Handle(ctx, &intake.DeleteRequested{ConversationID: "c1", TaskID: 1})
	del, ok := out.(*intake.TaskDeleted)
	if !ok || !del.Deleted {
		t.Fatalf("delete existing: got %#v", out)
	}

	out = engine.Handle(ctx, &intake.DeleteRequested{ConversationID: "c1", TaskID: 99})
	del, ok = out.(*intake.TaskDeleted)
	if !ok || del.Deleted {
		t.Fatalf("delete unknown: got %#v", out)
	}

	if _, ok := engine.Handle(ctx, &intake.HelpRequested{}).(*intake.HelpText); !ok {
		t.Error("help: expected *HelpText")
	}
}

func TestEngine_QueryFailures(t *testing.T) {
	store := &fakeStore{failList: true, failDelete: true}
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	for _, ev := range []intake.Event{
		&intake.ListRequested{},
		&intake.ExportRequested{},
		&intake.DeleteRequested{TaskID: 1},
	} {
		out := engine.Handle(ctx, ev)
		if _, ok := out.(*intake.OperationFailed); !ok {
			t.Errorf("%T: got %T, want *OperationFailed", ev, out)
		}
	}
}
