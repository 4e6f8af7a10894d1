package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/axon/internal/approvals"
	"github.com/haasonsaas/axon/internal/observability"
	"github.com/haasonsaas/axon/internal/sessions"
	"github.com/haasonsaas/axon/pkg/models"
)

// AdapterFactory builds a model adapter for a model identifier. The
// runtime caches adapters per model, so factories are only consulted on
// first use.
type AdapterFactory func(model string) (ModelAdapter, error)

// RuntimeOptions configures a Runtime. Factory is required; everything
// else has a usable default or may be nil.
type RuntimeOptions struct {
	DefaultModel    string
	Workspace       string
	SystemPrompt    string
	MaxTokens       int
	MaxHistory      int
	ApprovalTimeout time.Duration

	Factory    AdapterFactory
	Store      *sessions.TranscriptStore
	ToolEvents ToolEventStore
	Notifier   Notifier
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// TurnRequest is one inbound user message routed to a session.
type TurnRequest struct {
	// SessionID addresses the session directly. When empty it is
	// derived from Channel, ChatID, and SenderID.
	SessionID  string
	Channel    string
	ChatID     string
	SenderID   string
	SenderName string
	Text       string
	// Model overrides the runtime default for this turn.
	Model string
}

// Runtime owns the long-lived state of the assistant: the tool
// registry, the approval manager, cached session contexts, and one
// adapter per model. Turns for the same session are serialized by a
// refcounted per-session lock.
type Runtime struct {
	opts      RuntimeOptions
	registry  *ToolRegistry
	approvals *approvals.Manager
	loop      *Loop
	logger    *slog.Logger

	adaptersMu sync.Mutex
	adapters   map[string]ModelAdapter

	sessionsMu sync.RWMutex
	sessions   map[string]*sessions.Context

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

// NewRuntime creates a runtime with an empty tool registry.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("adapter factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	registry := NewToolRegistry(opts.Logger)
	approvalMgr := approvals.NewManager(opts.ApprovalTimeout, opts.Logger)

	var transcript TranscriptAppender
	if opts.Store != nil {
		transcript = opts.Store
	}
	loop := NewLoop(registry, approvalMgr, &LoopConfig{
		MaxTokens:       opts.MaxTokens,
		SystemPrompt:    opts.SystemPrompt,
		ApprovalTimeout: opts.ApprovalTimeout,
		Notifier:        opts.Notifier,
		Transcript:      transcript,
		ToolEvents:      opts.ToolEvents,
		Metrics:         opts.Metrics,
		Logger:          opts.Logger,
	})

	return &Runtime{
		opts:         opts,
		registry:     registry,
		approvals:    approvalMgr,
		loop:         loop,
		logger:       opts.Logger,
		adapters:     map[string]ModelAdapter{},
		sessions:     map[string]*sessions.Context{},
		sessionLocks: map[string]*sessionLock{},
	}, nil
}

// Registry exposes the tool registry for registration.
func (r *Runtime) Registry() *ToolRegistry {
	return r.registry
}

// RegisterTool adds a tool to the runtime's registry.
func (r *Runtime) RegisterTool(tool Tool) {
	r.registry.Register(tool)
}

// Chat processes one turn. Concurrent turns for the same session block
// on the session lock and run one at a time; turns for different
// sessions proceed independently.
func (r *Runtime) Chat(ctx context.Context, req TurnRequest) (string, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = sessions.SessionKey(req.Channel, req.ChatID, req.SenderID)
	}
	if !sessions.ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", sessions.ErrInvalidSessionID, sessionID)
	}

	model := req.Model
	if model == "" {
		model = r.opts.DefaultModel
	}
	if model == "" {
		return "", fmt.Errorf("%w: no model requested and no default configured", ErrUnknownModel)
	}

	unlock := r.lockSession(sessionID)
	defer unlock()

	sc, err := r.getOrCreateSession(sessionID, req)
	if err != nil {
		return "", err
	}

	adapter, err := r.adapterFor(model)
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := r.loop.Chat(ctx, adapter, model, sc, req.Text)
	status := "success"
	if err != nil {
		status = "error"
	}
	r.opts.Metrics.ObserveTurn(string(sc.Channel), status, time.Since(start))
	return reply, err
}

// getOrCreateSession returns the cached context or builds one, creating
// the transcript and rehydrating the recent history from disk.
func (r *Runtime) getOrCreateSession(sessionID string, req TurnRequest) (*sessions.Context, error) {
	r.sessionsMu.RLock()
	sc, ok := r.sessions[sessionID]
	r.sessionsMu.RUnlock()
	if ok {
		return sc, nil
	}

	channel := models.ChannelType(req.Channel)
	sessionType := sessions.DeriveSessionType(req.Channel, req.ChatID)
	sc = sessions.NewContext(sessionID, channel, req.SenderID, req.SenderName, sessionType)
	sc.Workspace = r.opts.Workspace

	if r.opts.Store != nil {
		if err := r.opts.Store.Create(sessionID, channel); err != nil {
			return nil, fmt.Errorf("create transcript: %w", err)
		}
		tail, err := r.opts.Store.LoadTail(sessionID, r.opts.MaxHistory)
		if err != nil {
			r.logger.Error("transcript rehydration failed",
				"session_id", sessionID, "error", err)
		} else if len(tail) > 0 {
			sc.Rehydrate(tail)
			r.logger.Info("session rehydrated",
				"session_id", sessionID, "messages", len(tail))
		}
	}

	r.sessionsMu.Lock()
	if existing, ok := r.sessions[sessionID]; ok {
		sc = existing
	} else {
		r.sessions[sessionID] = sc
	}
	r.sessionsMu.Unlock()
	return sc, nil
}

// adapterFor returns the cached adapter for a model, building it on
// first use.
func (r *Runtime) adapterFor(model string) (ModelAdapter, error) {
	r.adaptersMu.Lock()
	defer r.adaptersMu.Unlock()
	if adapter, ok := r.adapters[model]; ok {
		return adapter, nil
	}
	adapter, err := r.opts.Factory(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownModel, model, err)
	}
	r.adapters[model] = adapter
	return adapter, nil
}

// ResolveApproval applies a human decision to a pending approval.
func (r *Runtime) ResolveApproval(recordID string, decision approvals.Decision, resolvedBy string) bool {
	return r.approvals.Resolve(recordID, decision, resolvedBy)
}

// PendingApprovals lists approvals awaiting a decision.
func (r *Runtime) PendingApprovals() []*approvals.Record {
	return r.approvals.ListPending()
}

// GetSession returns the cached session context.
func (r *Runtime) GetSession(sessionID string) (*sessions.Context, bool) {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	sc, ok := r.sessions[sessionID]
	return sc, ok
}

// ListSessions returns cached session IDs merged with those on disk.
func (r *Runtime) ListSessions() []string {
	seen := map[string]struct{}{}
	r.sessionsMu.RLock()
	for id := range r.sessions {
		seen[id] = struct{}{}
	}
	r.sessionsMu.RUnlock()

	if r.opts.Store != nil {
		if stored, err := r.opts.Store.List(); err == nil {
			for _, id := range stored {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearSession evicts a session from the in-memory cache. The
// transcript file stays on disk; the next turn rehydrates from it.
// Pending approvals for the session are left to their timeout.
func (r *Runtime) ClearSession(sessionID string) {
	r.sessionsMu.Lock()
	delete(r.sessions, sessionID)
	r.sessionsMu.Unlock()
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession serializes turns per session. The lock entry is dropped
// once the last holder releases it.
func (r *Runtime) lockSession(sessionID string) func() {
	if strings.TrimSpace(sessionID) == "" {
		return func() {}
	}

	r.sessionLocksMu.Lock()
	lock := r.sessionLocks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		r.sessionLocks[sessionID] = lock
	}
	lock.refs++
	r.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(r.sessionLocks, sessionID)
		}
		r.sessionLocksMu.Unlock()
	}
}
