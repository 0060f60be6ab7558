package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/taskintake/export"
	"github.com/c360studio/taskintake/intake"
)

// Envelope wraps an outcome on the wire. Kind discriminates the payload
// shape; ID is a fresh UUID for correlation in front-end logs.
type Envelope struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// ExportDocument is the rendered form of an export outcome: a ready CSV
// file for the front-end to send as an attachment. Data is base64 in the
// JSON encoding.
type ExportDocument struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Adapter subscribes to the event subjects and drives the engine. Each
// subscription is dispatched on its own goroutine; ordering within a
// conversation is the engine's job.
type Adapter struct {
	nc     *nats.Conn
	engine *intake.Engine
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewAdapter creates a transport adapter over an established connection.
func NewAdapter(nc *nats.Conn, engine *intake.Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{nc: nc, engine: engine, logger: logger}
}

// Start subscribes to all event subjects. Call Stop to unsubscribe.
func (a *Adapter) Start() error {
	bindings := []struct {
		subject  string
		newEvent func() intake.Event
	}{
		{SubjectEventStart, func() intake.Event { return &intake.StartRequested{} }},
		{SubjectEventText, func() intake.Event { return &intake.TextReceived{} }},
		{SubjectEventSkip, func() intake.Event { return &intake.SkipRequested{} }},
		{SubjectEventCancel, func() intake.Event { return &intake.CancelRequested{} }},
		{SubjectIntentList, func() intake.Event { return &intake.ListRequested{} }},
		{SubjectIntentDelete, func() intake.Event { return &intake.DeleteRequested{} }},
		{SubjectIntentExport, func() intake.Event { return &intake.ExportRequested{} }},
		{SubjectIntentHelp, func() intake.Event { return &intake.HelpRequested{} }},
	}

	for _, b := range bindings {
		newEvent := b.newEvent
		sub, err := a.nc.Subscribe(b.subject, func(msg *nats.Msg) {
			a.handle(msg, newEvent())
		})
		if err != nil {
			a.Stop()
			return fmt.Errorf("subscribe %s: %w", b.subject, err)
		}
		a.subs = append(a.subs, sub)
	}

	a.logger.Info("transport adapter started", "subjects", len(bindings))
	return nil
}

// Stop unsubscribes from all event subjects.
func (a *Adapter) Stop() {
	for _, sub := range a.subs {
		_ = sub.Unsubscribe()
	}
	a.subs = nil
}

func (a *Adapter) handle(msg *nats.Msg, ev intake.Event) {
	if err := json.Unmarshal(msg.Data, ev); err != nil {
		a.logger.Warn("drop undecodable event",
			"subject", msg.Subject,
			"error", err)
		return
	}
	if err := ev.Validate(); err != nil {
		a.logger.Warn("drop invalid event",
			"subject", msg.Subject,
			"error", err)
		return
	}

	outcome := a.engine.Handle(context.Background(), ev)

	kind := outcome.Kind()
	var payload any = outcome
	if ep, ok := outcome.(*intake.ExportPayload); ok {
		// Render the CSV here so front-ends get a ready attachment.
		data, err := export.CSV(ep.Tasks)
		if err != nil {
			a.logger.Error("render export failed", "error", err)
			kind = "operation_failed"
			payload = &intake.OperationFailed{Op: "export"}
		} else {
			kind = "export_document"
			payload = &ExportDocument{Filename: "tasks.csv", Data: data}
		}
	}

	a.publish(msg, ev.Conversation(), kind, payload)
}

func (a *Adapter) publish(msg *nats.Msg, conversationID, kind string, payload any) {
	env := Envelope{
		ID:      uuid.New().String(),
		Kind:    kind,
		Payload: payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		a.logger.Error("marshal outcome envelope", "kind", kind, "error", err)
		return
	}

	subject := msg.Reply
	if subject == "" {
		subject = OutcomeSubject(conversationID)
	}
	if err := a.nc.Publish(subject, data); err != nil {
		a.logger.Error("publish outcome",
			"subject", subject,
			"kind", kind,
			"error", err)
	}
}
