// Package logging provides the gateway's structured logger: JSON output in
// cluster environments, human-readable text locally, level-gated, with a
// rate limiter on error output so a cascading outage does not flood stdout.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the interface every gateway component accepts for observability.
// A component-scoped logger can be obtained via WithComponent.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugContext(ctx context.Context, msg string, fields map[string]interface{})

	WithComponent(component string) Logger
}

// RateLimiter permits at most one event per interval; used to cap error-log
// volume during cascading failures.
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}

// GatewayLogger is the concrete structured logger.
type GatewayLogger struct {
	level        string
	debug        bool
	serviceName  string
	component    string
	format       string
	output       io.Writer
	mu           *sync.RWMutex
	errorLimiter *RateLimiter
}

// New creates a logger for serviceName. Configuration priority: environment
// variables, then Kubernetes auto-detection, then defaults.
func New(serviceName string) *GatewayLogger {
	level := os.Getenv("GATEWAY_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	debug := os.Getenv("GATEWAY_DEBUG") == "true" || strings.ToUpper(level) == "DEBUG"

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("GATEWAY_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &GatewayLogger{
		level:        strings.ToUpper(level),
		debug:        debug,
		serviceName:  serviceName,
		format:       format,
		output:       os.Stdout,
		mu:           &sync.RWMutex{},
		errorLimiter: NewRateLimiter(time.Second),
	}
}

func (l *GatewayLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *GatewayLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *GatewayLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *GatewayLogger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *GatewayLogger) InfoContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, withTrace(ctx, fields))
}
func (l *GatewayLogger) WarnContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, withTrace(ctx, fields))
}
func (l *GatewayLogger) ErrorContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withTrace(ctx, fields))
}
func (l *GatewayLogger) DebugContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, withTrace(ctx, fields))
}

type traceIDKey struct{}

// WithTraceID attaches a correlation id to ctx for later log lines.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

func withTrace(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	id, _ := ctx.Value(traceIDKey{}).(string)
	if id == "" {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["trace_id"] = id
	return out
}

// WithComponent returns a logger scoped to component; the underlying output
// and level configuration are shared with the parent.
func (l *GatewayLogger) WithComponent(component string) Logger {
	return &GatewayLogger{
		level:        l.level,
		debug:        l.debug,
		serviceName:  l.serviceName,
		component:    component,
		format:       l.format,
		output:       l.output,
		mu:           l.mu,
		errorLimiter: l.errorLimiter,
	}
}

func (l *GatewayLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *GatewayLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		if k != "timestamp" && k != "level" && k != "service" && k != "component" && k != "message" {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *GatewayLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	comp := l.component
	if comp == "" {
		comp = l.serviceName
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, comp, msg, b.String())
}

func (l *GatewayLogger) shouldLog(level string) bool {
	levels := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := levels[l.level]
	msg, ok2 := levels[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}

// SetOutput redirects log output; used by tests.
func (l *GatewayLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetFormat overrides the output format ("json" or "text"); used by tests.
func (l *GatewayLogger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}

// NoOp is a Logger that discards everything, used where no logger is wired.
type NoOp struct{}

func (NoOp) Info(string, map[string]interface{})                                    {}
func (NoOp) Warn(string, map[string]interface{})                                    {}
func (NoOp) Error(string, map[string]interface{})                                   {}
func (NoOp) Debug(string, map[string]interface{})                                   {}
func (NoOp) InfoContext(context.Context, string, map[string]interface{})            {}
func (NoOp) WarnContext(context.Context, string, map[string]interface{})            {}
func (NoOp) ErrorContext(context.Context, string, map[string]interface{})           {}
func (NoOp) DebugContext(context.Context, string, map[string]interface{})           {}
func (n NoOp) WithComponent(string) Logger                                          { return n }
