package approvals

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the terminal state of an approval record.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionTimeout Decision = "timeout"
)

// DefaultTimeout is how long a pending approval waits before expiring.
const DefaultTimeout = 5 * time.Minute

// Request describes the tool execution awaiting a human decision.
type Request struct {
	ToolName        string          `json:"tool_name"`
	Command         string          `json:"command,omitempty"`
	Args            json.RawMessage `json:"args,omitempty"`
	SessionKey      string          `json:"session_key"`
	AgentID         string          `json:"agent_id,omitempty"`
	SecurityContext string          `json:"security_context,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// Record is one pending or resolved approval. The first transition wins:
// once a decision is set, later resolutions and the expiry timer are
// no-ops.
type Record struct {
	ID        string    `json:"id"`
	Request   Request   `json:"request"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	mu         sync.Mutex
	decision   Decision
	resolvedAt time.Time
	resolvedBy string
	waiters    int
	done       chan struct{}
	timer      *time.Timer
}

// Decision returns the record's decision, empty while pending.
func (r *Record) Decision() Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decision
}

// ResolvedBy returns who resolved the record, empty while pending or
// after a timeout.
func (r *Record) ResolvedBy() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolvedBy
}

// IsResolved reports whether the record has reached a terminal state.
func (r *Record) IsResolved() bool {
	return r.Decision() != ""
}

// Manager tracks approval records and provides the blocking rendezvous
// between a tool execution awaiting permission and the human resolving
// it from another channel.
type Manager struct {
	mu             sync.RWMutex
	records        map[string]*Record
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewManager creates a manager. A non-positive defaultTimeout falls back
// to DefaultTimeout.
func NewManager(defaultTimeout time.Duration, logger *slog.Logger) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		records:        map[string]*Record{},
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Create registers a new pending approval and arms its expiry timer.
// A non-positive timeout uses the manager default.
func (m *Manager) Create(req Request, timeout time.Duration) *Record {
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Request:   req,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
		done:      make(chan struct{}),
	}
	rec.timer = time.AfterFunc(timeout, func() { m.expire(rec) })

	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	m.logger.Info("approval requested",
		"approval_id", rec.ID,
		"tool", req.ToolName,
		"session", req.SessionKey,
		"expires_at", rec.ExpiresAt)
	return rec
}

// expire transitions a still-pending record to TIMEOUT.
func (m *Manager) expire(rec *Record) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.decision != "" {
		return
	}
	rec.decision = DecisionTimeout
	rec.resolvedAt = time.Now().UTC()
	close(rec.done)
	m.logger.Info("approval timed out", "approval_id", rec.ID, "tool", rec.Request.ToolName)
}

// Wait blocks until the record reaches a terminal decision or ctx is
// cancelled. On cancellation the record stays pending and the context
// error is returned.
func (m *Manager) Wait(ctx context.Context, rec *Record) (Decision, error) {
	rec.mu.Lock()
	if rec.decision != "" {
		d := rec.decision
		rec.mu.Unlock()
		return d, nil
	}
	rec.waiters++
	rec.mu.Unlock()

	defer func() {
		rec.mu.Lock()
		rec.waiters--
		rec.mu.Unlock()
	}()

	select {
	case <-rec.done:
		return rec.Decision(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve applies a human decision to a pending record. It returns false
// when the record is unknown, already resolved, not an approve/deny
// decision, or has no waiter to release. A resolve without a waiter is
// deliberately a no-op so stale approvals cannot authorize anything.
func (m *Manager) Resolve(id string, decision Decision, resolvedBy string) bool {
	if decision != DecisionApprove && decision != DecisionDeny {
		return false
	}

	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.decision != "" {
		return false
	}
	if rec.waiters == 0 {
		m.logger.Warn("approval resolve with no pending waiter",
			"approval_id", id, "decision", decision)
		return false
	}
	rec.decision = decision
	rec.resolvedAt = time.Now().UTC()
	rec.resolvedBy = resolvedBy
	rec.timer.Stop()
	close(rec.done)

	m.logger.Info("approval resolved",
		"approval_id", id,
		"decision", decision,
		"resolved_by", resolvedBy)
	return true
}

// Get returns the record with the given ID.
func (m *Manager) Get(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

// ListPending returns the records still awaiting a decision.
func (m *Manager) ListPending() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for _, rec := range m.records {
		if !rec.IsResolved() {
			out = append(out, rec)
		}
	}
	return out
}

// Prune drops resolved records older than the given age and returns how
// many were removed.
func (m *Manager) Prune(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, rec := range m.records {
		rec.mu.Lock()
		resolved := rec.decision != ""
		resolvedAt := rec.resolvedAt
		rec.mu.Unlock()
		if resolved && resolvedAt.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed
}
