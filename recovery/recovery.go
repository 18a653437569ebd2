// Package recovery implements the Recovery Engine: a rule-driven
// remediation loop that evaluates Health Monitor snapshots against a rule
// table and issues capped, cooldown-gated remediation actions.
package recovery

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/usorama/engg-context-gateway/health"
	"github.com/usorama/engg-context-gateway/internal/logging"
)

// Action is a remediation action kind.
type Action string

const (
	ActionRestartContainer Action = "restart_container"
	ActionClearCache       Action = "clear_cache"
	ActionReconnect        Action = "reconnect"
	ActionEscalate         Action = "escalate"
	ActionNoop             Action = "noop"
)

// Rule binds a service pattern and trigger condition to a remediation
// action, with a per-rule attempt cap.
type Rule struct {
	ServicePattern      *regexp.Regexp
	MinConsecutiveFails int
	MinLatency          time.Duration
	ErrorPattern        *regexp.Regexp
	Action              Action
	MaxAttempts         int
}

func (r Rule) matches(s health.Snapshot) bool {
	if r.ServicePattern != nil && !r.ServicePattern.MatchString(s.Service) {
		return false
	}
	if r.MinConsecutiveFails > 0 && s.ConsecutiveFailures < r.MinConsecutiveFails {
		return false
	}
	if r.MinLatency > 0 && s.LastLatency < r.MinLatency {
		return false
	}
	if r.ErrorPattern != nil && !r.ErrorPattern.MatchString(s.LastError) {
		return false
	}
	return r.MinConsecutiveFails > 0 || r.MinLatency > 0 || r.ErrorPattern != nil
}

// Attempt is one recorded remediation action.
type Attempt struct {
	Service  string
	Action   Action
	Ordinal  int
	Success  bool
	Err      string
	Occurred time.Time
}

// Executor performs the side effect of each action kind.
type Executor interface {
	RestartContainer(ctx context.Context, service string) error
	ClearCache(ctx context.Context, service string) error
	Reconnect(ctx context.Context, service string) error
	Escalate(ctx context.Context, service, reason string) error
}

const (
	defaultCooldown   = 60 * time.Second
	defaultHourlyCap  = 5
)

type serviceBudget struct {
	mu           sync.Mutex
	lastAttempt  map[Action]time.Time
	hourWindow   []time.Time
	ruleAttempts map[int]int
	ordinal      int
}

// Engine evaluates Rules against Health Monitor snapshots and dispatches
// Executor actions under cooldown and per-hour caps.
type Engine struct {
	rules    []Rule
	executor Executor
	logger   logging.Logger

	cooldown  time.Duration
	hourlyCap int

	mu       sync.Mutex
	budgets  map[string]*serviceBudget
	attempts []Attempt
}

// Option configures an Engine.
type Option func(*Engine)

func WithCooldown(d time.Duration) Option { return func(e *Engine) { e.cooldown = d } }
func WithHourlyCap(n int) Option          { return func(e *Engine) { e.hourlyCap = n } }

func New(rules []Rule, executor Executor, logger logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NoOp{}
	}
	e := &Engine{
		rules:     rules,
		executor:  executor,
		logger:    logger.WithComponent("recovery"),
		cooldown:  defaultCooldown,
		hourlyCap: defaultHourlyCap,
		budgets:   make(map[string]*serviceBudget),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every rule against snap and dispatches the first matching
// rule's action, subject to cooldown and caps.
func (e *Engine) Evaluate(ctx context.Context, snap health.Snapshot) {
	for ruleIdx, rule := range e.rules {
		if !rule.matches(snap) {
			continue
		}
		e.dispatch(ctx, ruleIdx, rule, snap)
		return
	}
}

func (e *Engine) budgetFor(service string) *serviceBudget {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.budgets[service]
	if !ok {
		b = &serviceBudget{lastAttempt: make(map[Action]time.Time), ruleAttempts: make(map[int]int)}
		e.budgets[service] = b
	}
	return b
}

func (e *Engine) dispatch(ctx context.Context, ruleIdx int, rule Rule, snap health.Snapshot) {
	budget := e.budgetFor(snap.Service)

	budget.mu.Lock()
	now := time.Now()

	if last, ok := budget.lastAttempt[rule.Action]; ok && now.Sub(last) < e.cooldown {
		budget.mu.Unlock()
		return
	}

	cutoff := now.Add(-time.Hour)
	kept := budget.hourWindow[:0]
	for _, t := range budget.hourWindow {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	budget.hourWindow = kept

	action := rule.Action
	if len(budget.hourWindow) >= e.hourlyCap || budget.ruleAttempts[ruleIdx] >= rule.MaxAttempts {
		action = ActionEscalate
	}

	budget.hourWindow = append(budget.hourWindow, now)
	budget.ruleAttempts[ruleIdx]++
	budget.ordinal++
	ordinal := budget.ordinal
	budget.lastAttempt[action] = now
	budget.mu.Unlock()

	err := e.execute(ctx, action, snap.Service, snap.LastError)
	attempt := Attempt{Service: snap.Service, Action: action, Ordinal: ordinal, Success: err == nil, Occurred: now}
	if err != nil {
		attempt.Err = err.Error()
		e.logger.ErrorContext(ctx, "recovery action failed", map[string]interface{}{
			"service": snap.Service, "action": action, "error": err.Error(),
		})
	} else {
		e.logger.InfoContext(ctx, "recovery action executed", map[string]interface{}{
			"service": snap.Service, "action": action,
		})
	}

	e.mu.Lock()
	e.attempts = append(e.attempts, attempt)
	e.mu.Unlock()
}

func (e *Engine) execute(ctx context.Context, action Action, service, lastErr string) error {
	if e.executor == nil {
		return fmt.Errorf("recovery: no executor configured for action %s", action)
	}
	switch action {
	case ActionRestartContainer:
		return e.executor.RestartContainer(ctx, service)
	case ActionClearCache:
		return e.executor.ClearCache(ctx, service)
	case ActionReconnect:
		return e.executor.Reconnect(ctx, service)
	case ActionEscalate:
		return e.executor.Escalate(ctx, service, lastErr)
	case ActionNoop:
		return nil
	default:
		return fmt.Errorf("recovery: unknown action %s", action)
	}
}

// Attempts returns every recorded attempt so far.
func (e *Engine) Attempts() []Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Attempt, len(e.attempts))
	copy(out, e.attempts)
	return out
}
