// Package conversation implements the Conversation Manager: a two-tier
// store (a process-local write-through cache in front of a shared Redis store)
// over the round/phase state machine described in the conversation contract.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/usorama/engg-context-gateway/internal/logging"
)

// Phase is the conversation's lifecycle stage.
type Phase string

const (
	PhaseAnalyzing Phase = "analyzing"
	PhaseClarifying Phase = "clarifying"
	PhaseExecuting  Phase = "executing"
	PhaseCompleted  Phase = "completed"
)

// State is a conversation's persisted snapshot.
type State struct {
	ID       string
	Round    int
	MaxRounds int
	Phase    Phase
	Context  map[string]interface{}
	Query    string
	Created  time.Time
	Updated  time.Time
}

func (s State) clone() State {
	ctx := make(map[string]interface{}, len(s.Context))
	for k, v := range s.Context {
		ctx[k] = v
	}
	s.Context = ctx
	return s
}

// SharedStore is the durable, TTL-bounded backing store (Redis in
// production). Implementations must be safe for concurrent use.
type SharedStore interface {
	Save(ctx context.Context, s State, ttl time.Duration) error
	Load(ctx context.Context, id string) (State, bool, error)
	Refresh(ctx context.Context, id string, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

const (
	defaultMaxRounds = 3
	defaultTTL       = 3600 * time.Second
)

// Manager implements start/get/add_context/advance/end over a process-local
// write-through cache fronting a SharedStore, degrading to local-only when
// the shared store is unavailable.
type Manager struct {
	mu    sync.RWMutex
	local map[string]State

	shared    SharedStore
	ttl       time.Duration
	maxRounds int
	logger    logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

func WithTTL(ttl time.Duration) Option { return func(m *Manager) { m.ttl = ttl } }
func WithMaxRounds(n int) Option       { return func(m *Manager) { m.maxRounds = n } }

// New builds a Manager. shared may be nil, in which case the manager runs
// local-only for its entire lifetime (no degradation warnings emitted).
func New(shared SharedStore, logger logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NoOp{}
	}
	m := &Manager{
		local:     make(map[string]State),
		shared:    shared,
		ttl:       defaultTTL,
		maxRounds: defaultMaxRounds,
		logger:    logger.WithComponent("conversation"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a new conversation in the analyzing phase, round 1, with an
// empty context, and persists it.
func (m *Manager) Start(ctx context.Context, query string) State {
	now := time.Now()
	s := State{
		ID:        uuid.NewString(),
		Round:     1,
		MaxRounds: m.maxRounds,
		Phase:     PhaseAnalyzing,
		Context:   make(map[string]interface{}),
		Query:     query,
		Created:   now,
		Updated:   now,
	}
	m.persist(ctx, s)
	return s
}

// Get reads a conversation: local cache first; on miss it falls through to
// the shared store and repopulates local on a hit.
func (m *Manager) Get(ctx context.Context, id string) (State, bool) {
	m.mu.RLock()
	s, ok := m.local[id]
	m.mu.RUnlock()
	if ok {
		return s.clone(), true
	}

	if m.shared == nil {
		return State{}, false
	}

	s, ok, err := m.shared.Load(ctx, id)
	if err != nil {
		m.logger.WarnContext(ctx, "shared conversation store unavailable", map[string]interface{}{"error": err.Error()})
		return State{}, false
	}
	if !ok {
		return State{}, false
	}

	m.mu.Lock()
	m.local[id] = s
	m.mu.Unlock()
	return s.clone(), true
}

// AddContext writes key=value into the collected context and refreshes the
// persisted TTL. Last-writer-wins; no cross-key atomicity is promised.
func (m *Manager) AddContext(ctx context.Context, id, key string, value interface{}) (State, bool) {
	s, ok := m.Get(ctx, id)
	if !ok {
		return State{}, false
	}
	s.Context[key] = value
	s.Updated = time.Now()
	m.persist(ctx, s)
	return s, true
}

// Advance increments round, or transitions to completed once round reaches
// max_rounds, persisting either way.
func (m *Manager) Advance(ctx context.Context, id string) (State, bool) {
	s, ok := m.Get(ctx, id)
	if !ok {
		return State{}, false
	}
	if s.Round >= s.MaxRounds {
		s.Phase = PhaseCompleted
	} else {
		s.Round++
	}
	s.Updated = time.Now()
	m.persist(ctx, s)
	return s, true
}

// SetPhase overlays clarifying/executing without altering round accounting.
func (m *Manager) SetPhase(ctx context.Context, id string, phase Phase) (State, bool) {
	s, ok := m.Get(ctx, id)
	if !ok {
		return State{}, false
	}
	s.Phase = phase
	s.Updated = time.Now()
	m.persist(ctx, s)
	return s, true
}

// End marks a conversation completed and removes it from both tiers,
// returning the final snapshot.
func (m *Manager) End(ctx context.Context, id string) (State, bool) {
	s, ok := m.Get(ctx, id)
	if !ok {
		return State{}, false
	}
	s.Phase = PhaseCompleted
	s.Updated = time.Now()

	m.mu.Lock()
	delete(m.local, id)
	m.mu.Unlock()

	if m.shared != nil {
		if err := m.shared.Delete(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "shared conversation store unavailable on end", map[string]interface{}{"error": err.Error()})
		}
	}
	return s, true
}

func (m *Manager) persist(ctx context.Context, s State) {
	m.mu.Lock()
	m.local[s.ID] = s
	m.mu.Unlock()

	if m.shared == nil {
		return
	}
	if err := m.shared.Save(ctx, s, m.ttl); err != nil {
		m.logger.WarnContext(ctx, "shared conversation store unavailable, degrading to local only", map[string]interface{}{"error": err.Error()})
	}
}
