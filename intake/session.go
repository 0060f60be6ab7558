package intake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/taskintake/metrics"
)

// Step identifies the input the intake conversation is waiting for.
type Step int

const (
	StepText Step = iota
	StepResponsible
	StepDeadline
)

// String returns the step name for logging.
func (s Step) String() string {
	switch s {
	case StepText:
		return "text"
	case StepResponsible:
		return "responsible"
	case StepDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// Session tracks one conversation's progress through intake. A session is
// owned by the conversation that created it; fields other than UpdatedAt
// are only touched from that conversation's event handling.
type Session struct {
	ConversationID string
	Submitter      string
	Step           Step

	Text        string
	Responsible *string
	Deadline    *string

	UpdatedAt time.Time
}

// Registry holds active intake sessions keyed by conversation. Abandoned
// sessions are evicted by the idle sweep so memory stays bounded.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
	metrics  *metrics.Intake
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger, m *metrics.Intake) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  m,
	}
}

// Begin creates a fresh session for the conversation, replacing any
// intake already in progress.
func (r *Registry) Begin(conversationID, submitter string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ConversationID: conversationID,
		Submitter:      submitter,
		Step:           StepText,
		UpdatedAt:      time.Now(),
	}
	r.sessions[conversationID] = s
	r.metrics.SessionsStarted.Inc()
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s
}

// Get returns the conversation's active session, or nil.
func (r *Registry) Get(conversationID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[conversationID]
}

// Touch refreshes the session's idle timer.
func (r *Registry) Touch(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[conversationID]; ok {
		s.UpdatedAt = time.Now()
	}
}

// Remove discards the conversation's session. It reports whether a
// session existed.
func (r *Registry) Remove(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conversationID]; !ok {
		return false
	}
	delete(r.sessions, conversationID)
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return true
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
			r.logger.Info("intake session expired", "conversation_id", id)
		}
	}

	if evicted > 0 {
		r.metrics.SessionsExpired.Add(float64(evicted))
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	return evicted
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(maxIdle)
		}
	}
}
