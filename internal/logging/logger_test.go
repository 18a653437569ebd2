package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogTextFormat(t *testing.T) {
	l := New("gateway-test")
	l.SetFormat("text")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Info("hello", map[string]interface{}{"key": "value"})
	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "[INFO]")
}

func TestLogJSONFormat(t *testing.T) {
	l := New("gateway-test")
	l.SetFormat("json")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Warn("careful", map[string]interface{}{"attempt": 2})
	out := buf.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestDebugGatedByLevel(t *testing.T) {
	l := New("gateway-test")
	l.SetFormat("text")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Debug("should not print", nil)
	assert.Empty(t, buf.String())
}

func TestWithComponentScopesOutput(t *testing.T) {
	l := New("gateway-test")
	l.SetFormat("text")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	scoped := l.WithComponent("orchestrator")
	scoped.Info("scoped message", nil)
	assert.Contains(t, buf.String(), "[orchestrator]")
}
